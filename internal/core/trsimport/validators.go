package trsimport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// Global error codes.
const (
	CodeInvalidDirname    = "invalid_dirname"
	CodeUnknownCategory   = "unknown_category"
	CodeAlreadyExists     = "already_exists"
	CodeMissingPrevious   = "missing_previous_transmittal"
	CodeMissingCSV        = "missing_csv"
	CodeInvalidCSV        = "invalid_csv"
	CodeCSVColumns        = "csv_columns"
	CodeWrongPDFCount     = "wrong_pdf_count"
	CodeOrphanNativeFiles = "orphan_native_files"
	CodeInternalError     = "internal_error"
)

// Line error codes.
const (
	CodeMissingData         = "missing_data"
	CodeWrongRevisionFormat = "wrong_revision_format"
	CodeMissingPDF          = "missing_pdf"
	CodeWrongCategory       = "wrong_category"
	CodeWrongTitle          = "wrong_title"
	CodeFormErrors          = "form_errors"
)

var revisionRe = regexp.MustCompile(`^\d{2}$`)

var requiredLineFields = []string{"document_key", "revision", "status", "title"}

// GlobalValidator reports every directory-level problem in one pass.
func GlobalValidator() Validator[*Import] {
	return CompositeValidator[*Import]{
		ValidatorFunc[*Import](validateDirname),
		ValidatorFunc[*Import](validateCategory),
		ValidatorFunc[*Import](validateNotExisting),
		ValidatorFunc[*Import](validatePreviousTransmittal),
		ValidatorFunc[*Import](validateCSV),
		ValidatorFunc[*Import](validatePDFCount),
		ValidatorFunc[*Import](validateNativeFiles),
	}
}

func validateDirname(_ context.Context, imp *Import) domain.ValidationErrors {
	if imp.Parts == nil {
		return fail(CodeInvalidDirname, fmt.Sprintf("%q does not match CONTRACT-ORIGINATOR-RECIPIENT-TRS-NNNNN", imp.Basename))
	}
	return nil
}

func validateCategory(_ context.Context, imp *Import) domain.ValidationErrors {
	if imp.Parts != nil && !imp.HasCategory {
		return fail(CodeUnknownCategory, fmt.Sprintf("no category imports transmittals from %q", imp.Parts.Originator))
	}
	return nil
}

func validateNotExisting(ctx context.Context, imp *Import) domain.ValidationErrors {
	if imp.Parts == nil {
		return nil
	}
	existing, err := imp.repos.Transmittals().FindActiveByKey(ctx, imp.Basename)
	switch {
	case err == nil && existing != nil:
		return fail(CodeAlreadyExists, fmt.Sprintf("transmittal %s already exists with status %s", imp.Basename, existing.Status))
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return fail(CodeInternalError, err.Error())
	}
	for _, area := range []ports.TransmittalArea{ports.AreaToBeChecked, ports.AreaAccepted} {
		if imp.fs.Exists(area, imp.Basename) {
			return fail(CodeAlreadyExists, fmt.Sprintf("directory %s already exists", imp.fs.Path(area, imp.Basename)))
		}
	}
	return nil
}

func validatePreviousTransmittal(ctx context.Context, imp *Import) domain.ValidationErrors {
	if imp.Parts == nil || imp.Parts.SequentialNumber <= 1 {
		return nil
	}
	p := imp.Parts
	previous, err := imp.repos.Transmittals().FindBySequence(ctx, p.Contract, p.Originator, p.Recipient, p.SequentialNumber-1)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fail(CodeInternalError, err.Error())
	}
	for _, trs := range previous {
		if trs.Status != domain.TransmittalRejected {
			return nil
		}
	}
	return fail(CodeMissingPrevious, fmt.Sprintf("transmittal %s was not imported",
		domain.TransmittalKey(p.Contract, p.Originator, p.Recipient, p.SequentialNumber-1)))
}

func validateCSV(_ context.Context, imp *Import) domain.ValidationErrors {
	if !imp.fs.FileExists(imp.CSVPath()) {
		return fail(CodeMissingCSV, fmt.Sprintf("missing file %s", filepath.Base(imp.CSVPath())))
	}
	if imp.ManifestErr != nil {
		return fail(CodeInvalidCSV, imp.ManifestErr.Error())
	}
	if imp.Manifest == nil || !imp.HasCategory {
		return nil
	}

	expected := make(map[string]struct{}, len(imp.Category.Columns))
	for _, name := range imp.Category.ColumnNames() {
		expected[name] = struct{}{}
	}
	got := make(map[string]struct{}, len(imp.Manifest.Columns))
	for _, name := range imp.Manifest.Columns {
		got[name] = struct{}{}
	}
	var missing, unexpected []string
	for name := range expected {
		if _, ok := got[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range got {
		if _, ok := expected[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(unexpected, ", "))
	}
	return fail(CodeCSVColumns, strings.Join(parts, "; "))
}

func validatePDFCount(_ context.Context, imp *Import) domain.ValidationErrors {
	if imp.Manifest == nil {
		return nil
	}
	pdfs, rows := len(imp.PDFFiles()), len(imp.Manifest.Rows)
	if pdfs != rows {
		return fail(CodeWrongPDFCount, fmt.Sprintf("found %d pdf files for %d csv lines", pdfs, rows))
	}
	return nil
}

func validateNativeFiles(_ context.Context, imp *Import) domain.ValidationErrors {
	pdfBases := make(map[string]struct{})
	for _, name := range imp.PDFFiles() {
		pdfBases[strings.TrimSuffix(name, filepath.Ext(name))] = struct{}{}
	}
	orphans := make(map[string]struct{})
	for _, name := range imp.Files {
		if isPDF(name) || isManifest(imp, name) {
			continue
		}
		if _, ok := pdfBases[strings.TrimSuffix(name, filepath.Ext(name))]; !ok {
			orphans[name] = struct{}{}
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	return fail(CodeOrphanNativeFiles, "native files without matching pdf: "+strings.Join(sortedKeys(orphans), ", "))
}

// LineValidator stops at the first failing check of a CSV line. Checks that need
// an existing document pass when there is none.
func LineValidator() Validator[*Line] {
	return AndValidator[*Line]{
		ValidatorFunc[*Line](validateRequired),
		ValidatorFunc[*Line](validateRevisionFormat),
		ValidatorFunc[*Line](validatePDFExists),
		ValidatorFunc[*Line](validateDocumentCategory),
		ValidatorFunc[*Line](validateSameTitle),
		ValidatorFunc[*Line](validateForm),
	}
}

func validateRequired(_ context.Context, line *Line) domain.ValidationErrors {
	var missing []string
	for _, field := range requiredLineFields {
		if line.Fields[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fail(CodeMissingData, "missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}

func validateRevisionFormat(_ context.Context, line *Line) domain.ValidationErrors {
	if !revisionRe.MatchString(line.RevisionRaw) {
		return fail(CodeWrongRevisionFormat, fmt.Sprintf("revision %q is not a two digit number", line.RevisionRaw))
	}
	return nil
}

func validatePDFExists(_ context.Context, line *Line) domain.ValidationErrors {
	name := line.PDFName()
	if !line.Import.fs.FileExists(filepath.Join(line.Import.Dir, name)) {
		return fail(CodeMissingPDF, fmt.Sprintf("missing file %s", name))
	}
	return nil
}

func validateDocumentCategory(ctx context.Context, line *Line) domain.ValidationErrors {
	doc, err := line.Document(ctx)
	if err != nil {
		return fail(CodeInternalError, err.Error())
	}
	if doc == nil {
		return nil
	}
	if doc.Category != line.Import.Category.Slug {
		return fail(CodeWrongCategory, fmt.Sprintf("document %s belongs to category %s", doc.DocumentKey, doc.Category))
	}
	return nil
}

func validateSameTitle(ctx context.Context, line *Line) domain.ValidationErrors {
	doc, err := line.Document(ctx)
	if err != nil {
		return fail(CodeInternalError, err.Error())
	}
	if doc == nil {
		return nil
	}
	if doc.Title != line.Title {
		return fail(CodeWrongTitle, fmt.Sprintf("title %q differs from the existing title %q", line.Title, doc.Title))
	}
	return nil
}

func validateForm(ctx context.Context, line *Line) domain.ValidationErrors {
	imp := line.Import
	if imp.form == nil {
		return nil
	}
	doc, err := line.Document(ctx)
	if err != nil {
		return fail(CodeInternalError, err.Error())
	}
	rev, err := line.ExistingRevision(ctx, doc)
	if err != nil {
		return fail(CodeInternalError, err.Error())
	}
	errs := imp.form.Validate(ctx, imp.repos, imp.Category, line.Fields, doc, rev)
	if len(errs) == 0 {
		return nil
	}
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, errs[field]))
	}
	return fail(CodeFormErrors, strings.Join(parts, "; "))
}

// RevisionsValidator checks revision numbering per document across all lines.
//
// Revisions at or below the stored latest revision are edits. Revisions above
// it must start at latest+1 and be contiguous. For a new document the first
// proposed revision is free. The result maps document keys to the violation.
func RevisionsValidator() Validator[*Import] {
	return ValidatorFunc[*Import](validateRevisions)
}

func validateRevisions(ctx context.Context, imp *Import) domain.ValidationErrors {
	proposed := make(map[string][]int)
	var keys []string
	for _, line := range imp.Lines() {
		if _, ok := proposed[line.DocumentKey]; !ok {
			keys = append(keys, line.DocumentKey)
		}
		proposed[line.DocumentKey] = append(proposed[line.DocumentKey], line.Revision())
	}

	out := domain.ValidationErrors{}
	for _, key := range keys {
		doc, err := imp.Document(ctx, key)
		if err != nil {
			out[key] = err.Error()
			continue
		}
		if msg := checkSequence(doc, proposed[key]); msg != "" {
			out[key] = msg
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func checkSequence(doc *domain.Document, revisions []int) string {
	current := -1
	if doc != nil {
		current = doc.LatestRevision
	}

	var fresh []int
	for _, rev := range revisions {
		if current >= 0 && rev <= current {
			continue
		}
		fresh = append(fresh, rev)
	}
	if len(fresh) == 0 {
		return ""
	}
	sort.Ints(fresh)

	expected := fresh[0]
	if current >= 0 {
		expected = current + 1
	}
	for i, rev := range fresh {
		if i > 0 && rev == fresh[i-1] {
			return fmt.Sprintf("revision %02d appears more than once", rev)
		}
		if rev != expected {
			return fmt.Sprintf("missing revision %02d before %02d", expected, rev)
		}
		expected++
	}
	return ""
}
