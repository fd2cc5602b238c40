package usecase

import (
	"context"
	"errors"
	"path"
	"strings"
	"testing"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/forms"
	"github.com/kirillkom/phase-edms/internal/core/ports"
	"github.com/kirillkom/phase-edms/internal/infrastructure/repository/memory"
)

type move struct {
	from, to  ports.TransmittalArea
	basename  string
	overwrite bool
}

type fsFake struct {
	dirs    map[ports.TransmittalArea]map[string]bool
	moves   []move
	moveErr error
	// afterMove runs after each successful move.
	afterMove func()
}

func newFSFake() *fsFake {
	return &fsFake{dirs: map[ports.TransmittalArea]map[string]bool{}}
}

func (f *fsFake) add(area ports.TransmittalArea, basename string) {
	if f.dirs[area] == nil {
		f.dirs[area] = map[string]bool{}
	}
	f.dirs[area][basename] = true
}

func (f *fsFake) Path(area ports.TransmittalArea, basename string) string {
	return path.Join("/data", string(area), basename)
}

func (f *fsFake) Exists(area ports.TransmittalArea, basename string) bool {
	return f.dirs[area][basename]
}

func (f *fsFake) ListDirs(area ports.TransmittalArea) ([]string, error) {
	var out []string
	for name := range f.dirs[area] {
		out = append(out, name)
	}
	return out, nil
}

func (f *fsFake) ListFiles(string) ([]string, error) { return nil, nil }

func (f *fsFake) FileExists(string) bool { return false }

func (f *fsFake) Move(from, to ports.TransmittalArea, basename string, overwrite bool) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves = append(f.moves, move{from: from, to: to, basename: basename, overwrite: overwrite})
	delete(f.dirs[from], basename)
	f.add(to, basename)
	if f.afterMove != nil {
		f.afterMove()
	}
	return nil
}

type categoriesFake map[string]domain.Category

func (c categoriesFake) Category(slug string) (domain.Category, bool) {
	cat, ok := c[slug]
	return cat, ok
}

func (c categoriesFake) ImportCategory(originator string) (domain.Category, bool) {
	for _, cat := range c {
		if cat.ImportEnabled && cat.Organisation == originator {
			return cat, true
		}
	}
	return domain.Category{}, false
}

type jobSubmitterFake struct {
	requests []domain.JobRequest
	err      error
}

func (f *jobSubmitterFake) Enqueue(_ context.Context, kind domain.JobKind, requestedBy string, _ any) (*domain.JobRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	req := domain.JobRequest{ID: "job-1", Kind: kind, RequestedBy: requestedBy}
	f.requests = append(f.requests, req)
	return &req, nil
}

func (f *jobSubmitterFake) Status(context.Context, string) (*domain.JobStatus, error) {
	return nil, domain.ErrNotFound
}

var testCategories = categoriesFake{
	"ctr-deliverables": {
		Slug:             "ctr-deliverables",
		Organisation:     "CTR",
		Contract:         "FAC10005",
		DocumentType:     "contractor_deliverable",
		OutgoingCategory: "clt-outgoing",
		ImportEnabled:    true,
		Fields: []domain.FieldSpec{
			{Name: "originator", Required: true},
			{Name: "return_code", Revision: true},
		},
	},
	"clt-outgoing": {
		Slug:         "clt-outgoing",
		Organisation: "CLT",
		Contract:     "FAC10005",
		DocumentType: "transmittal",
	},
}

type transmittalFixture struct {
	store   *memory.Store
	fs      *fsFake
	jobs    *jobSubmitterFake
	audit   *auditFake
	index   *indexFake
	service *TransmittalService
	trs     *domain.Transmittal
}

const testBasename = "FAC10005-CTR-CLT-TRS-00001"

func newTransmittalFixture(t *testing.T, lines ...domain.TrsRevision) *transmittalFixture {
	t.Helper()
	f := &transmittalFixture{
		store: memory.NewStore(),
		fs:    newFSFake(),
		jobs:  &jobSubmitterFake{},
		audit: &auditFake{},
		index: &indexFake{},
	}
	f.service = NewTransmittalService(f.store, f.fs, forms.New(nil), testCategories, f.jobs, f.audit, f.index, nil)
	f.service.now = fixedClock

	f.trs = &domain.Transmittal{
		ID:               "trs-1",
		DocumentKey:      testBasename,
		Category:         "ctr-deliverables",
		Contract:         "FAC10005",
		Originator:       "CTR",
		Recipient:        "CLT",
		SequentialNumber: 1,
		Status:           domain.TransmittalToBeChecked,
		CreatedOn:        fixedNow,
		UpdatedOn:        fixedNow,
	}
	ctx := context.Background()
	if err := f.store.Transmittals().Create(ctx, f.trs); err != nil {
		t.Fatalf("create transmittal: %v", err)
	}
	for i := range lines {
		lines[i].TransmittalID = f.trs.ID
	}
	if len(lines) > 0 {
		if err := f.store.Transmittals().CreateRevisions(ctx, lines); err != nil {
			t.Fatalf("create staged lines: %v", err)
		}
	}
	f.fs.add(ports.AreaToBeChecked, testBasename)
	return f
}

func stagedLine(id, documentKey string, revision int) domain.TrsRevision {
	return domain.TrsRevision{
		ID:          id,
		LineNumber:  revision,
		DocumentKey: documentKey,
		Title:       "Title of " + documentKey,
		Revision:    revision,
		Status:      "IFR",
		Category:    "ctr-deliverables",
		Fields:      map[string]string{"originator": "CTR", "return_code": "1"},
		PDFFile:     documentKey + "_01.pdf",
		PageCount:   3,
	}
}

func (f *transmittalFixture) status(t *testing.T) domain.TransmittalStatus {
	t.Helper()
	trs, err := f.store.Transmittals().GetByID(context.Background(), f.trs.ID)
	if err != nil {
		t.Fatalf("get transmittal: %v", err)
	}
	return trs.Status
}

func TestProcessCreatesDocumentsAndRevisions(t *testing.T) {
	f := newTransmittalFixture(t,
		stagedLine("l-2", "FAC10005-CTR-000-HSE-REP-0001", 1),
		stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0),
		stagedLine("l-3", "FAC10005-CTR-000-HSE-REP-0002", 0),
	)
	ctx := context.Background()

	var progress []float64
	if err := f.service.Process(ctx, "checker", f.trs.ID, func(p float64) { progress = append(progress, p) }); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got := f.status(t); got != domain.TransmittalAccepted {
		t.Fatalf("status = %q, want accepted", got)
	}
	doc, err := f.store.Documents().GetByKey(ctx, "FAC10005-CTR-000-HSE-REP-0001")
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if doc.LatestRevision != 1 || !doc.IsIndexable || doc.DocumentType != "contractor_deliverable" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	rev, err := f.store.Revisions().Get(ctx, domain.RevisionKey{DocumentID: doc.ID, Revision: 1})
	if err != nil {
		t.Fatalf("Get() revision 1 error = %v", err)
	}
	if rev.Fields["return_code"] != "1" || doc.Fields["originator"] != "CTR" {
		t.Fatalf("fields not split between document and revision: doc=%v rev=%v", doc.Fields, rev.Fields)
	}

	lines, err := f.store.Transmittals().ListRevisions(ctx, f.trs.ID)
	if err != nil {
		t.Fatalf("ListRevisions() error = %v", err)
	}
	for _, line := range lines {
		if line.DocumentID == "" {
			t.Fatalf("staged line %s not linked to its document", line.ID)
		}
	}

	if len(f.fs.moves) != 1 || f.fs.moves[0].to != ports.AreaAccepted || f.fs.moves[0].basename != testBasename {
		t.Fatalf("unexpected moves: %+v", f.fs.moves)
	}
	if len(f.index.actions) != 3 {
		t.Fatalf("expected 3 indexed revisions, got %d", len(f.index.actions))
	}
	if verbs := f.audit.verbs(); len(verbs) != 1 || verbs[0] != domain.VerbTransmittalAccepted {
		t.Fatalf("unexpected audit trail: %v", verbs)
	}
	if progress[len(progress)-1] != 100 {
		t.Fatalf("expected final progress 100, got %v", progress)
	}
}

func TestProcessSkipsRefusedLines(t *testing.T) {
	refused := stagedLine("l-2", "FAC10005-CTR-000-HSE-REP-0002", 0)
	no := false
	refused.Accepted = &no
	f := newTransmittalFixture(t, stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0), refused)
	ctx := context.Background()

	if err := f.service.Process(ctx, "checker", f.trs.ID, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if _, err := f.store.Documents().GetByKey(ctx, "FAC10005-CTR-000-HSE-REP-0002"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("refused line must not create a document, got %v", err)
	}
}

func TestProcessFailureRollsBackAndReverts(t *testing.T) {
	bad := stagedLine("l-2", "FAC10005-CTR-000-HSE-REP-0002", 0)
	bad.Title = ""
	f := newTransmittalFixture(t, stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0), bad)
	ctx := context.Background()

	err := f.service.Process(ctx, "checker", f.trs.ID, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got := f.status(t); got != domain.TransmittalToBeChecked {
		t.Fatalf("status = %q, want tobechecked", got)
	}
	if _, err := f.store.Documents().GetByKey(ctx, "FAC10005-CTR-000-HSE-REP-0001"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("earlier lines must be rolled back, got %v", err)
	}
	if len(f.fs.moves) != 0 {
		t.Fatalf("failed processing must not move the directory")
	}
}

func TestProcessMoveFailureRollsBackAndReverts(t *testing.T) {
	f := newTransmittalFixture(t, stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0))
	f.fs.moveErr = errors.New("rename: device or resource busy")
	ctx := context.Background()

	err := f.service.Process(ctx, "checker", f.trs.ID, nil)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := f.status(t); got != domain.TransmittalToBeChecked {
		t.Fatalf("status = %q, want tobechecked", got)
	}
	if _, err := f.store.Documents().GetByKey(ctx, "FAC10005-CTR-000-HSE-REP-0001"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("documents must be rolled back, got %v", err)
	}
	if !f.fs.Exists(ports.AreaToBeChecked, testBasename) || f.fs.Exists(ports.AreaAccepted, testBasename) {
		t.Fatalf("directory must stay in tobechecked: %+v", f.fs.dirs)
	}

	f.fs.moveErr = nil
	if err := f.service.Process(ctx, "checker", f.trs.ID, nil); err != nil {
		t.Fatalf("retry Process() error = %v", err)
	}
	if got := f.status(t); got != domain.TransmittalAccepted {
		t.Fatalf("status = %q, want accepted", got)
	}
}

func TestProcessCommitFailureMovesDirectoryBack(t *testing.T) {
	f := newTransmittalFixture(t, stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.fs.afterMove = cancel

	if err := f.service.Process(ctx, "checker", f.trs.ID, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := f.status(t); got != domain.TransmittalToBeChecked {
		t.Fatalf("status = %q, want tobechecked", got)
	}
	if !f.fs.Exists(ports.AreaToBeChecked, testBasename) || f.fs.Exists(ports.AreaAccepted, testBasename) {
		t.Fatalf("directory must be moved back to tobechecked: %+v", f.fs.dirs)
	}
	if len(f.fs.moves) != 2 || f.fs.moves[1].from != ports.AreaAccepted {
		t.Fatalf("unexpected moves: %+v", f.fs.moves)
	}
}

func TestProcessRefusesExistingAcceptedDirectory(t *testing.T) {
	f := newTransmittalFixture(t, stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0))
	f.fs.add(ports.AreaAccepted, testBasename)

	err := f.service.Process(context.Background(), "checker", f.trs.ID, nil)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAcceptEnqueuesProcessing(t *testing.T) {
	f := newTransmittalFixture(t, stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0))

	req, err := f.service.Accept(context.Background(), "checker", f.trs.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if req.Kind != domain.JobProcessTransmittal || req.RequestedBy != "checker" {
		t.Fatalf("unexpected job request: %+v", req)
	}
	if got := f.status(t); got != domain.TransmittalProcessing {
		t.Fatalf("status = %q, want processing", got)
	}

	if _, err := f.service.Accept(context.Background(), "checker", f.trs.ID); !domain.IsKind(err, domain.ErrPrecondition) {
		t.Fatalf("second accept must fail with ErrPrecondition, got %v", err)
	}
}

func TestAcceptRevertsStatusWhenEnqueueFails(t *testing.T) {
	f := newTransmittalFixture(t)
	f.jobs.err = domain.WrapError(domain.ErrTemporary, "publish", errors.New("queue down"))

	_, err := f.service.Accept(context.Background(), "checker", f.trs.ID)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if got := f.status(t); got != domain.TransmittalToBeChecked {
		t.Fatalf("status = %q, want tobechecked", got)
	}
}

func TestRejectFreesTransmittalKey(t *testing.T) {
	f := newTransmittalFixture(t)
	ctx := context.Background()

	trs, err := f.service.Reject(ctx, "checker", f.trs.ID)
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if trs.Status != domain.TransmittalRejected || trs.RejectedOn == nil {
		t.Fatalf("unexpected transmittal: %+v", trs)
	}
	if !strings.HasPrefix(trs.DocumentKey, testBasename+"-") || len(trs.DocumentKey) <= len(testBasename)+1 {
		t.Fatalf("document key %q must carry a unique suffix", trs.DocumentKey)
	}
	if trs.Basename() != testBasename {
		t.Fatalf("basename must still derive from the key parts, got %q", trs.Basename())
	}
	if len(f.fs.moves) != 1 || f.fs.moves[0].to != ports.AreaRejected || !f.fs.moves[0].overwrite {
		t.Fatalf("unexpected moves: %+v", f.fs.moves)
	}
	if _, err := f.store.Transmittals().FindActiveByKey(ctx, testBasename); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("rejected transmittal must free its key, got %v", err)
	}
	if verbs := f.audit.verbs(); len(verbs) != 1 || verbs[0] != domain.VerbTransmittalRejected {
		t.Fatalf("unexpected audit trail: %v", verbs)
	}
}

func TestRejectMoveFailureKeepsTransmittal(t *testing.T) {
	f := newTransmittalFixture(t)
	f.fs.moveErr = errors.New("rename: permission denied")
	ctx := context.Background()

	if _, err := f.service.Reject(ctx, "checker", f.trs.ID); err == nil {
		t.Fatalf("Reject() must fail when the move fails")
	}
	if got := f.status(t); got != domain.TransmittalToBeChecked {
		t.Fatalf("status = %q, want tobechecked", got)
	}
	if _, err := f.store.Transmittals().FindActiveByKey(ctx, testBasename); err != nil {
		t.Fatalf("transmittal key must stay active, got %v", err)
	}
	if len(f.audit.verbs()) != 0 {
		t.Fatalf("failed reject must not be audited: %v", f.audit.verbs())
	}

	f.fs.moveErr = nil
	trs, err := f.service.Reject(ctx, "checker", f.trs.ID)
	if err != nil {
		t.Fatalf("retry Reject() error = %v", err)
	}
	if trs.Status != domain.TransmittalRejected || !f.fs.Exists(ports.AreaRejected, testBasename) {
		t.Fatalf("retry must reject and move: %+v", trs)
	}
}

func TestReviewLineRecordsDecision(t *testing.T) {
	f := newTransmittalFixture(t, stagedLine("l-1", "FAC10005-CTR-000-HSE-REP-0001", 0))
	ctx := context.Background()

	if err := f.service.ReviewLine(ctx, "checker", "l-1", false, "wrong title"); err != nil {
		t.Fatalf("ReviewLine() error = %v", err)
	}
	line, err := f.store.Transmittals().GetRevision(ctx, "l-1")
	if err != nil {
		t.Fatalf("GetRevision() error = %v", err)
	}
	if !line.Refused() || line.Comment != "wrong title" {
		t.Fatalf("unexpected line: %+v", line)
	}
}
