package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/jobs"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// postProcessingUnits inflates the progress total so a batch never reports
// 100% before the index refresh that follows the per-document work.
const postProcessingUnits = 5

type batchMode int

const (
	batchStart batchMode = iota
	batchCancel
)

// BatchReviewRunner starts or cancels reviews on many documents. One failing
// document never aborts the batch.
type BatchReviewRunner struct {
	store    ports.Store
	reviews  *ReviewService
	registry *domain.TypeRegistry
	notifier ports.Notifier
	index    ports.SearchIndex
	links    LinkBuilder
	logger   *slog.Logger
}

func NewBatchReviewRunner(
	store ports.Store,
	reviews *ReviewService,
	registry *domain.TypeRegistry,
	notifier ports.Notifier,
	index ports.SearchIndex,
	links LinkBuilder,
	logger *slog.Logger,
) *BatchReviewRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchReviewRunner{
		store:    store,
		reviews:  reviews,
		registry: registry,
		notifier: notifier,
		index:    index,
		links:    links,
		logger:   logger,
	}
}

func (r *BatchReviewRunner) StartReviews(ctx context.Context, actor string, documentIDs []string, progress jobs.ProgressFunc) domain.BatchResult {
	return r.run(ctx, actor, documentIDs, progress, batchStart)
}

func (r *BatchReviewRunner) CancelReviews(ctx context.Context, actor string, documentIDs []string, progress jobs.ProgressFunc) domain.BatchResult {
	return r.run(ctx, actor, documentIDs, progress, batchCancel)
}

func (r *BatchReviewRunner) run(ctx context.Context, actor string, documentIDs []string, progress jobs.ProgressFunc, mode batchMode) domain.BatchResult {
	if progress == nil {
		progress = func(float64) {}
	}
	result := domain.BatchResult{OK: []domain.BatchItem{}, NOK: []domain.BatchItem{}}
	total := float64(len(documentIDs) + postProcessingUnits)
	var processed []*domain.Revision

	for i, id := range documentIDs {
		if err := ctx.Err(); err != nil {
			for _, rest := range documentIDs[i:] {
				result.NOK = append(result.NOK, domain.BatchItem{DocumentID: rest, Reason: "canceled"})
			}
			break
		}

		rev, item, err := r.apply(ctx, actor, id, mode)
		if err != nil {
			item.Reason = err.Error()
			result.NOK = append(result.NOK, item)
			r.logger.Warn("batch_review_item_failed", "document_id", id, "mode", mode.String(), "error", err)
		} else {
			result.OK = append(result.OK, item)
			processed = append(processed, rev)
		}
		progress(float64(i+1) / total * 100)
	}

	// The index refresh and notifications run even when the batch was canceled.
	finalCtx := context.WithoutCancel(ctx)
	if len(processed) > 0 {
		actions := make([]domain.IndexAction, 0, len(processed))
		for _, rev := range processed {
			actions = append(actions, revisionIndexAction(rev))
		}
		if err := r.index.Bulk(finalCtx, actions); err != nil {
			r.logger.Warn("batch_review_index_failed", "count", len(actions), "error", err)
		}
	}
	progress(100)

	r.notify(finalCtx, actor, result, mode)
	return result
}

// apply handles one document, turning panics into item failures.
func (r *BatchReviewRunner) apply(ctx context.Context, actor, documentID string, mode batchMode) (rev *domain.Revision, item domain.BatchItem, err error) {
	item = domain.BatchItem{DocumentID: documentID}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected failure: %v", rec)
		}
	}()

	doc, err := r.store.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil, item, fmt.Errorf("load document: %w", err)
	}
	item.DocumentKey = doc.DocumentKey
	item.Title = doc.Title
	item.URL = r.links.Document(doc)

	if !r.registry.IsReviewable(doc.DocumentType) {
		return nil, item, domain.WrapError(domain.ErrPrecondition, "batch review", fmt.Errorf("document type %q does not support reviews", doc.DocumentType))
	}
	rev, err = r.store.Revisions().Latest(ctx, doc.ID)
	if err != nil {
		return nil, item, fmt.Errorf("load latest revision: %w", err)
	}

	switch mode {
	case batchStart:
		if !rev.CanBeReviewed() {
			return nil, item, domain.WrapError(domain.ErrPrecondition, "batch review", errors.New("review cannot be started"))
		}
		err = r.reviews.startReview(ctx, actor, rev, false)
	case batchCancel:
		if !rev.IsUnderReview() {
			return nil, item, domain.WrapError(domain.ErrPrecondition, "batch review", errors.New("document is not under review"))
		}
		err = r.reviews.cancelReview(ctx, actor, rev, false)
	}
	if err != nil {
		return nil, item, err
	}
	return rev, item, nil
}

func (r *BatchReviewRunner) notify(ctx context.Context, actor string, result domain.BatchResult, mode batchMode) {
	if actor == "" {
		return
	}
	okIntro, nokIntro := "The review was started for the following documents:", "The review could not be started for the following documents:"
	if mode == batchCancel {
		okIntro, nokIntro = "The review was canceled for the following documents:", "The review could not be canceled for the following documents:"
	}

	if len(result.OK) > 0 {
		if err := r.notifier.Notify(ctx, actor, renderBatchItems(okIntro, result.OK, false)); err != nil {
			r.logger.Warn("batch_review_notify_failed", "user", actor, "error", err)
		}
	}
	if len(result.NOK) > 0 {
		if err := r.notifier.Notify(ctx, actor, renderBatchItems(nokIntro, result.NOK, true)); err != nil {
			r.logger.Warn("batch_review_notify_failed", "user", actor, "error", err)
		}
	}
}

func renderBatchItems(intro string, items []domain.BatchItem, withReason bool) string {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(html.EscapeString(intro))
	b.WriteString("</p><ul>")
	for _, item := range items {
		label := item.DocumentKey
		if label == "" {
			label = item.DocumentID
		}
		if item.Title != "" {
			label += " - " + item.Title
		}
		b.WriteString("<li>")
		if item.URL != "" {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(item.URL), html.EscapeString(label))
		} else {
			b.WriteString(html.EscapeString(label))
		}
		if withReason && item.Reason != "" {
			b.WriteString(" (")
			b.WriteString(html.EscapeString(item.Reason))
			b.WriteString(")")
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func (m batchMode) String() string {
	if m == batchCancel {
		return "cancel"
	}
	return "start"
}

// LinkBuilder renders absolute links to documents.
type LinkBuilder struct {
	SiteURL string
}

func (l LinkBuilder) Document(doc *domain.Document) string {
	return fmt.Sprintf("%s/%s/%s/", strings.TrimRight(l.SiteURL, "/"), doc.Category, doc.DocumentKey)
}
