package ports

import (
	"context"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// DocumentRepository persists documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	Update(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByKey(ctx context.Context, documentKey string) (*domain.Document, error)
}

// RevisionRepository persists document revisions and their review state.
type RevisionRepository interface {
	Create(ctx context.Context, rev *domain.Revision) error
	Update(ctx context.Context, rev *domain.Revision) error
	Get(ctx context.Context, key domain.RevisionKey) (*domain.Revision, error)
	Latest(ctx context.Context, documentID string) (*domain.Revision, error)
}

// ReviewRepository persists per-participant review rows.
type ReviewRepository interface {
	CreateMany(ctx context.Context, reviews []domain.Review) error
	Update(ctx context.Context, review *domain.Review) error
	Delete(ctx context.Context, id string) error
	DeleteByRevision(ctx context.Context, key domain.RevisionKey) (int, error)
	ListByRevision(ctx context.Context, key domain.RevisionKey) ([]domain.Review, error)
	CloseByRole(ctx context.Context, key domain.RevisionKey, role domain.Role) error
}

// TransmittalRepository persists incoming transmittals and their staged lines.
type TransmittalRepository interface {
	Create(ctx context.Context, trs *domain.Transmittal) error
	Update(ctx context.Context, trs *domain.Transmittal) error
	GetByID(ctx context.Context, id string) (*domain.Transmittal, error)
	// FindActiveByKey returns the non-rejected transmittal owning documentKey.
	FindActiveByKey(ctx context.Context, documentKey string) (*domain.Transmittal, error)
	FindBySequence(ctx context.Context, contract, originator, recipient string, seq int) ([]domain.Transmittal, error)

	CreateRevisions(ctx context.Context, revs []domain.TrsRevision) error
	ListRevisions(ctx context.Context, transmittalID string) ([]domain.TrsRevision, error)
	GetRevision(ctx context.Context, id string) (*domain.TrsRevision, error)
	UpdateRevision(ctx context.Context, rev *domain.TrsRevision) error
}

// OutgoingRepository persists outgoing transmittals with their exported snapshots.
type OutgoingRepository interface {
	Create(ctx context.Context, trs *domain.OutgoingTransmittal) error
	GetByID(ctx context.Context, id string) (*domain.OutgoingTransmittal, error)
	NextSequentialNumber(ctx context.Context, contract, originator, recipient string) (int, error)
}

// Repos groups repositories sharing one connection or transaction.
type Repos interface {
	Documents() DocumentRepository
	Revisions() RevisionRepository
	Reviews() ReviewRepository
	Transmittals() TransmittalRepository
	Outgoing() OutgoingRepository
}

// Store runs multi-row changes atomically.
type Store interface {
	Repos
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}

// JobStatusStore keeps pollable job progress.
type JobStatusStore interface {
	SaveJobStatus(ctx context.Context, status domain.JobStatus) error
	GetJobStatus(ctx context.Context, id string) (*domain.JobStatus, error)
}

// ChoiceRepository persists configurable choice list entries.
type ChoiceRepository interface {
	ListByIndex(ctx context.Context, listIndex int) ([]domain.ChoiceEntry, error)
	Save(ctx context.Context, entry *domain.ChoiceEntry) error
}

// ChoiceSource resolves the allowed values of a choice list.
type ChoiceSource interface {
	Values(ctx context.Context, listIndex int) ([]string, error)
}

// AuditSink records state transitions.
type AuditSink interface {
	Record(ctx context.Context, activity domain.Activity) error
}

// Notifier enqueues user-visible notifications.
type Notifier interface {
	Notify(ctx context.Context, userID, body string) error
}

// SearchIndex applies index/delete actions.
type SearchIndex interface {
	Bulk(ctx context.Context, actions []domain.IndexAction) error
}

// ReportMailer sends import error reports to the configured recipients.
type ReportMailer interface {
	SendErrorReport(ctx context.Context, subject string, report domain.ImportReport) error
}

// JobQueue publishes/consumes background jobs.
type JobQueue interface {
	PublishJob(ctx context.Context, req domain.JobRequest) error
	SubscribeJobs(ctx context.Context, handler func(context.Context, domain.JobRequest) error) error
}

type TransmittalArea string

const (
	AreaIncoming    TransmittalArea = "incoming"
	AreaToBeChecked TransmittalArea = "tobechecked"
	AreaAccepted    TransmittalArea = "accepted"
	AreaRejected    TransmittalArea = "rejected"
)

// TransmittalFS manages transmittal directories under the named roots.
type TransmittalFS interface {
	Path(area TransmittalArea, basename string) string
	Exists(area TransmittalArea, basename string) bool
	ListDirs(area TransmittalArea) ([]string, error)
	ListFiles(dir string) ([]string, error)
	FileExists(path string) bool
	// Move renames basename from one area to another. When overwrite is set a stale
	// target is removed first; otherwise an existing target is an error.
	Move(from, to TransmittalArea, basename string, overwrite bool) error
}

// ManifestReader parses an import CSV.
type ManifestReader interface {
	Read(ctx context.Context, path string) (*domain.Manifest, error)
}

// PDFInspector reads document properties from a PDF file.
type PDFInspector interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// RegisterExporter writes the list of revisions of an outgoing transmittal.
type RegisterExporter interface {
	Export(ctx context.Context, trs *domain.OutgoingTransmittal) (string, error)
}

// DocumentForm validates and saves document metadata and revision fields.
type DocumentForm interface {
	Validate(ctx context.Context, repos Repos, category domain.Category, fields map[string]string, doc *domain.Document, rev *domain.Revision) domain.ValidationErrors
	Save(ctx context.Context, repos Repos, category domain.Category, fields map[string]string, doc *domain.Document, rev *domain.Revision) (*domain.Document, *domain.Revision, error)
}

// CategoryResolver looks up category configuration.
type CategoryResolver interface {
	Category(slug string) (domain.Category, bool)
	ImportCategory(originator string) (domain.Category, bool)
}

// ActivityReader lists the audit trail of an object.
type ActivityReader interface {
	ListByTarget(ctx context.Context, targetType, targetID string) ([]domain.Activity, error)
}

// NotificationReader lists a user's notifications, newest first.
type NotificationReader interface {
	List(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}
