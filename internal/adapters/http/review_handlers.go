package httpadapter

import (
	"fmt"
	"net/http"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

func (rt *Router) loadRevision(w http.ResponseWriter, r *http.Request) (*domain.Revision, bool) {
	key, err := revisionKeyFromPath(r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	rev, err := rt.deps.Revisions.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return rev, true
}

func (rt *Router) getRevision(w http.ResponseWriter, r *http.Request) {
	rev, ok := rt.loadRevision(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"revision":        rev,
		"review_step":     rev.CurrentReviewStep(),
		"is_under_review": rev.IsUnderReview(),
		"can_be_reviewed": rev.CanBeReviewed(),
	})
}

func (rt *Router) listReviews(w http.ResponseWriter, r *http.Request) {
	rev, ok := rt.loadRevision(w, r)
	if !ok {
		return
	}
	reviews, err := rt.deps.Reviews.GetReviews(r.Context(), rev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (rt *Router) revisionActivity(w http.ResponseWriter, r *http.Request) {
	key, err := revisionKeyFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.writeActivity(w, r, "revision", key.String())
}

func (rt *Router) writeActivity(w http.ResponseWriter, r *http.Request, targetType, targetID string) {
	if rt.deps.Activities == nil {
		writeJSON(w, http.StatusOK, map[string]any{"activity": []domain.Activity{}})
		return
	}
	items, err := rt.deps.Activities.ListByTarget(r.Context(), targetType, targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": items})
}

// reviewAction runs one review transition. The orchestrator does not re-check
// preconditions, so they are enforced here.
func (rt *Router) reviewAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	action := r.PathValue("action")
	rev, ok := rt.loadRevision(w, r)
	if !ok {
		return
	}
	if err := rt.checkReviewAction(action, rev); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	var err error
	switch action {
	case "start":
		err = rt.deps.Reviews.StartReview(ctx, actor, rev)
	case "cancel":
		err = rt.deps.Reviews.CancelReview(ctx, actor, rev)
	case "end-reviewers-step":
		err = rt.deps.Reviews.EndReviewersStep(ctx, actor, rev)
	case "end-leader-step":
		err = rt.deps.Reviews.EndLeaderStep(ctx, actor, rev)
	case "end":
		err = rt.deps.Reviews.EndReview(ctx, actor, rev)
	}
	rt.record("review."+action, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revision": rev, "review_step": rev.CurrentReviewStep()})
}

func (rt *Router) checkReviewAction(action string, rev *domain.Revision) error {
	step := rev.CurrentReviewStep()
	var ok bool
	switch action {
	case "start":
		if !rt.deps.Registry.IsReviewable(rev.DocumentType) {
			return domain.WrapError(domain.ErrPrecondition, "start review", fmt.Errorf("document type %q is not reviewable", rev.DocumentType))
		}
		ok = rev.CanBeReviewed()
	case "cancel", "end":
		ok = rev.IsUnderReview()
	case "end-reviewers-step":
		ok = step == domain.StepReviewer
	case "end-leader-step":
		ok = step == domain.StepReviewer || step == domain.StepLeader
	default:
		return domain.WrapError(domain.ErrNotFound, "review action", fmt.Errorf("unknown action %q", action))
	}
	if !ok {
		return domain.WrapError(domain.ErrPrecondition, "review "+action,
			fmt.Errorf("revision %s is in step %s", rev.Key(), step))
	}
	return nil
}

func (rt *Router) submitReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Role       domain.Role `json:"role"`
		Comments   string      `json:"comments"`
		ReturnCode string      `json:"return_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !req.Role.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be reviewer, leader or approver"})
		return
	}
	rev, ok := rt.loadRevision(w, r)
	if !ok {
		return
	}

	err := rt.deps.Reviews.SubmitReview(r.Context(), rev, domain.Submission{
		ReviewerID: actor,
		Role:       req.Role,
		Comments:   req.Comments,
		ReturnCode: req.ReturnCode,
	})
	rt.record("review.submit", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revision": rev, "review_step": rev.CurrentReviewStep()})
}

func (rt *Router) updateDistribution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var list domain.DistributionList
	if err := decodeJSON(r, &list); err != nil {
		writeError(w, err)
		return
	}
	rev, ok := rt.loadRevision(w, r)
	if !ok {
		return
	}

	err := rt.deps.Reviews.UpdateDistributionList(r.Context(), actor, rev, list)
	rt.record("review.distribution", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revision": rev})
}
