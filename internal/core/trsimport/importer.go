package trsimport

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/jobs"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// Importer turns incoming transmittal directories into staged transmittals.
type Importer struct {
	store      ports.Store
	fs         ports.TransmittalFS
	manifests  ports.ManifestReader
	pdf        ports.PDFInspector
	form       ports.DocumentForm
	categories ports.CategoryResolver
	mailer     ports.ReportMailer
	audit      ports.AuditSink
	logger     *slog.Logger
	now        func() time.Time

	global    Validator[*Import]
	line      Validator[*Line]
	revisions Validator[*Import]
}

func NewImporter(
	store ports.Store,
	fs ports.TransmittalFS,
	manifests ports.ManifestReader,
	pdf ports.PDFInspector,
	form ports.DocumentForm,
	categories ports.CategoryResolver,
	mailer ports.ReportMailer,
	audit ports.AuditSink,
	logger *slog.Logger,
) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:      store,
		fs:         fs,
		manifests:  manifests,
		pdf:        pdf,
		form:       form,
		categories: categories,
		mailer:     mailer,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
		global:     GlobalValidator(),
		line:       LineValidator(),
		revisions:  RevisionsValidator(),
	}
}

// Load reads an incoming directory. Problems with its content are left for Validate.
func (i *Importer) Load(ctx context.Context, basename string) (*Import, error) {
	imp := &Import{
		Basename: basename,
		Dir:      i.fs.Path(ports.AreaIncoming, basename),
		repos:    i.store,
		fs:       i.fs,
		form:     i.form,
		docs:     map[string]*domain.Document{},
	}
	if !i.fs.Exists(ports.AreaIncoming, basename) {
		return nil, domain.WrapError(domain.ErrNotFound, "load import", fmt.Errorf("directory %s does not exist", imp.Dir))
	}

	if parts, err := domain.ParseTransmittalKey(basename); err == nil {
		imp.Parts = &parts
		imp.Category, imp.HasCategory = i.categories.ImportCategory(parts.Originator)
	}

	files, err := i.fs.ListFiles(imp.Dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", imp.Dir, err)
	}
	imp.Files = files

	if i.fs.FileExists(imp.CSVPath()) {
		imp.Manifest, imp.ManifestErr = i.manifests.Read(ctx, imp.CSVPath())
	}
	return imp, nil
}

// Validate runs the global checks, then every line, then revision sequencing.
// Sequencing is skipped when any earlier check failed.
func (i *Importer) Validate(ctx context.Context, imp *Import) domain.ImportReport {
	report := domain.NewImportReport()
	for code, detail := range i.global.Validate(ctx, imp) {
		report.Global[code] = detail
	}
	if imp.HasCategory {
		for _, line := range imp.Lines() {
			if errs := i.line.Validate(ctx, line); len(errs) > 0 {
				report.Lines[line.Number] = errs
			}
		}
	}
	if len(report.Global) == 0 && len(report.Lines) == 0 {
		for key, detail := range i.revisions.Validate(ctx, imp) {
			report.Revisions[key] = detail
		}
	}
	return report
}

// DoImport validates the directory and either stages it for checking or
// rejects it with an error report.
func (i *Importer) DoImport(ctx context.Context, basename string) (*domain.Transmittal, domain.ImportReport, error) {
	imp, err := i.Load(ctx, basename)
	if err != nil {
		return nil, domain.ImportReport{}, err
	}
	report := i.Validate(ctx, imp)
	if !report.Valid() {
		if err := i.fs.Move(ports.AreaIncoming, ports.AreaRejected, basename, true); err != nil {
			return nil, report, fmt.Errorf("move %s to rejected: %w", basename, err)
		}
		i.logger.Warn("transmittal_import_rejected", "basename", basename,
			"global_errors", len(report.Global), "line_errors", len(report.Lines), "revision_errors", len(report.Revisions))
		if i.mailer != nil {
			subject := fmt.Sprintf("Error during transmittal import %s", basename)
			if err := i.mailer.SendErrorReport(context.WithoutCancel(ctx), subject, report); err != nil {
				i.logger.Error("transmittal_report_mail_failed", "basename", basename, "error", err)
			}
		}
		return nil, report, nil
	}

	trs, err := i.Save(ctx, imp)
	if err != nil {
		return nil, report, err
	}
	return trs, report, nil
}

// Save persists the transmittal and one staging row per line, then moves the
// directory to the tobechecked root. A failed move rolls the rows back.
func (i *Importer) Save(ctx context.Context, imp *Import) (*domain.Transmittal, error) {
	if imp.Parts == nil || !imp.HasCategory {
		return nil, domain.WrapError(domain.ErrPrecondition, "save import", fmt.Errorf("%s was not validated", imp.Basename))
	}

	now := i.now().UTC()
	trs := &domain.Transmittal{
		ID:               uuid.NewString(),
		DocumentKey:      imp.Basename,
		Category:         imp.Category.Slug,
		Contract:         imp.Parts.Contract,
		Originator:       imp.Parts.Originator,
		Recipient:        imp.Parts.Recipient,
		SequentialNumber: imp.Parts.SequentialNumber,
		Status:           domain.TransmittalToBeChecked,
		TransmittalDate:  domain.Day(now),
		CreatedOn:        now,
		UpdatedOn:        now,
	}

	lines := imp.Lines()
	rows := make([]domain.TrsRevision, 0, len(lines))
	for _, line := range lines {
		doc, err := line.Document(ctx)
		if err != nil {
			return nil, err
		}
		rev := line.Revision()
		row := domain.TrsRevision{
			ID:            uuid.NewString(),
			TransmittalID: trs.ID,
			LineNumber:    line.Number,
			DocumentKey:   line.DocumentKey,
			Title:         line.Title,
			Revision:      rev,
			Status:        line.Status,
			Category:      imp.Category.Slug,
			Fields:        line.Fields,
			PDFFile:       line.PDFName(),
			NativeFile:    line.NativeName(),
			PageCount:     i.pageCount(ctx, filepath.Join(imp.Dir, line.PDFName())),
			IsNewRevision: doc == nil || rev > doc.LatestRevision,
			CreatedOn:     now,
		}
		if doc != nil {
			row.DocumentID = doc.ID
		}
		rows = append(rows, row)
	}

	moved := false
	err := i.store.WithinTx(ctx, func(ctx context.Context, tx ports.Repos) error {
		if err := tx.Transmittals().Create(ctx, trs); err != nil {
			return fmt.Errorf("create transmittal: %w", err)
		}
		if err := tx.Transmittals().CreateRevisions(ctx, rows); err != nil {
			return fmt.Errorf("create staged lines: %w", err)
		}
		if err := i.fs.Move(ports.AreaIncoming, ports.AreaToBeChecked, imp.Basename, false); err != nil {
			return domain.WrapError(domain.ErrConflict, "move to tobechecked", err)
		}
		moved = true
		return nil
	})
	if err != nil {
		// The directory moved but the rows never committed: return it to incoming
		// so the next scan picks it up again.
		if moved {
			if backErr := i.fs.Move(ports.AreaToBeChecked, ports.AreaIncoming, imp.Basename, false); backErr != nil {
				i.logger.Error("transmittal_directory_orphaned",
					"basename", imp.Basename, "path", i.fs.Path(ports.AreaToBeChecked, imp.Basename), "error", backErr)
			}
		}
		return nil, fmt.Errorf("save transmittal %s: %w", imp.Basename, err)
	}

	err = i.audit.Record(context.WithoutCancel(ctx), domain.Activity{
		ID:         uuid.NewString(),
		Verb:       domain.VerbTransmittalImported,
		TargetType: "transmittal",
		TargetID:   trs.ID,
		Detail:     trs.DocumentKey,
		CreatedAt:  now,
	})
	if err != nil {
		i.logger.Warn("audit_record_failed", "verb", domain.VerbTransmittalImported, "transmittal_id", trs.ID, "error", err)
	}
	i.logger.Info("transmittal_imported", "transmittal_id", trs.ID, "basename", imp.Basename, "lines", len(rows))
	return trs, nil
}

// pageCount fails soft: an unreadable PDF is recorded with zero pages.
func (i *Importer) pageCount(ctx context.Context, path string) int {
	if i.pdf == nil {
		return 0
	}
	n, err := i.pdf.PageCount(ctx, path)
	if err != nil {
		i.logger.Warn("pdf_page_count_failed", "path", path, "error", err)
		return 0
	}
	return n
}

// ImportIncoming imports the named directories, or every transmittal
// directory under the incoming root when basenames is empty.
func (i *Importer) ImportIncoming(ctx context.Context, basenames []string, progress jobs.ProgressFunc) (domain.ImportSummary, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	summary := domain.ImportSummary{Imported: []string{}, Rejected: map[string]string{}}

	if len(basenames) == 0 {
		dirs, err := i.fs.ListDirs(ports.AreaIncoming)
		if err != nil {
			return summary, fmt.Errorf("list incoming: %w", err)
		}
		for _, dir := range dirs {
			if _, err := domain.ParseTransmittalKey(dir); err == nil {
				basenames = append(basenames, dir)
			}
		}
	}
	sort.Strings(basenames)

	for n, basename := range basenames {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		trs, report, err := i.DoImport(ctx, basename)
		switch {
		case err != nil:
			summary.Rejected[basename] = err.Error()
			i.logger.Error("transmittal_import_failed", "basename", basename, "error", err)
		case trs == nil:
			summary.Rejected[basename] = describeReport(report)
		default:
			summary.Imported = append(summary.Imported, basename)
		}
		progress(float64(n+1) / float64(len(basenames)) * 100)
	}
	return summary, nil
}

func describeReport(report domain.ImportReport) string {
	var codes []string
	for code := range report.Global {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, n := range report.LineNumbers() {
		for code := range report.Lines[n] {
			codes = append(codes, fmt.Sprintf("line %d: %s", n, code))
		}
	}
	if len(report.Revisions) > 0 {
		codes = append(codes, "revisions")
	}
	if len(codes) == 0 {
		return "invalid"
	}
	return fmt.Sprint(codes)
}
