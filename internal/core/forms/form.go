// Package forms validates and saves document metadata and revision fields
// against the schema declared by a category.
package forms

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// Field kinds understood by the form.
const (
	KindText   = "text"
	KindInt    = "int"
	KindDate   = "date"
	KindChoice = "choice"
)

// Core field names every category carries.
const (
	FieldDocumentKey = "document_key"
	FieldTitle       = "title"
	FieldRevision    = "revision"
	FieldStatus      = "status"
	FieldDocclass    = "docclass"
	FieldLeader      = "leader"
	FieldApprover    = "approver"
	FieldReviewers   = "reviewers"
)

var (
	revisionRe    = regexp.MustCompile(`^\d{2}$`)
	documentKeyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// Form is the schema-driven document form.
type Form struct {
	choices ports.ChoiceSource
	now     func() time.Time

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func New(choices ports.ChoiceSource) *Form {
	return &Form{
		choices:  choices,
		now:      time.Now,
		patterns: map[string]*regexp.Regexp{},
	}
}

// Validate returns field-level errors, keyed by field name.
func (f *Form) Validate(
	ctx context.Context,
	repos ports.Repos,
	category domain.Category,
	fields map[string]string,
	doc *domain.Document,
	rev *domain.Revision,
) domain.ValidationErrors {
	errs := domain.ValidationErrors{}

	key := fields[FieldDocumentKey]
	switch {
	case key == "":
		errs[FieldDocumentKey] = "this field is required"
	case !documentKeyRe.MatchString(key):
		errs[FieldDocumentKey] = "only letters, digits, dashes and underscores are allowed"
	case doc != nil && doc.DocumentKey != key:
		errs[FieldDocumentKey] = "the document key cannot be changed"
	case doc == nil && repos != nil:
		if existing, err := repos.Documents().GetByKey(ctx, key); err == nil && existing != nil {
			errs[FieldDocumentKey] = "a document with this key already exists"
		}
	}
	if fields[FieldTitle] == "" {
		errs[FieldTitle] = "this field is required"
	}
	if fields[FieldStatus] == "" {
		errs[FieldStatus] = "this field is required"
	}
	if !revisionRe.MatchString(fields[FieldRevision]) {
		errs[FieldRevision] = "enter a two digit revision number"
	}
	if raw := fields[FieldDocclass]; raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 1 || n > 4 {
			errs[FieldDocclass] = "docclass must be between 1 and 4"
		}
	}
	if err := distributionFrom(fields, rev).Validate(); err != nil {
		errs[FieldLeader] = err.Error()
	}
	if rev != nil && rev.IsUnderReview() && distributionChanged(fields, rev) {
		errs[FieldLeader] = "the distribution list cannot be changed while the revision is under review"
	}

	for _, spec := range category.Fields {
		if msg := f.validateField(ctx, spec, fields[spec.Name]); msg != "" {
			errs[spec.Name] = msg
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (f *Form) validateField(ctx context.Context, spec domain.FieldSpec, value string) string {
	if value == "" {
		if spec.Required {
			return "this field is required"
		}
		return ""
	}
	if spec.Pattern != "" {
		re, err := f.pattern(spec.Pattern)
		if err != nil {
			return fmt.Sprintf("invalid pattern configured: %v", err)
		}
		if !re.MatchString(value) {
			return fmt.Sprintf("value %q does not match %s", value, spec.Pattern)
		}
	}
	switch spec.Kind {
	case KindInt:
		if _, err := strconv.Atoi(value); err != nil {
			return "enter a whole number"
		}
	case KindDate:
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			return "enter a date as YYYY-MM-DD"
		}
	}
	if spec.ChoiceList > 0 && f.choices != nil {
		values, err := f.choices.Values(ctx, spec.ChoiceList)
		if err != nil {
			return fmt.Sprintf("choice list %d unavailable: %v", spec.ChoiceList, err)
		}
		if !slices.Contains(values, value) {
			return fmt.Sprintf("%q is not one of the available choices", value)
		}
	}
	return ""
}

func (f *Form) pattern(expr string) (*regexp.Regexp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if re, ok := f.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, err
	}
	f.patterns[expr] = re
	return re, nil
}

// Save creates or updates the document and the revision. Callers validate first.
func (f *Form) Save(
	ctx context.Context,
	repos ports.Repos,
	category domain.Category,
	fields map[string]string,
	doc *domain.Document,
	rev *domain.Revision,
) (*domain.Document, *domain.Revision, error) {
	revision, err := strconv.Atoi(fields[FieldRevision])
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "save form", fmt.Errorf("revision %q: %w", fields[FieldRevision], err))
	}
	docFields, revFields := splitFields(category, fields)
	now := f.now().UTC()

	if doc == nil {
		doc = &domain.Document{
			ID:             uuid.NewString(),
			DocumentKey:    fields[FieldDocumentKey],
			Title:          fields[FieldTitle],
			Category:       category.Slug,
			DocumentType:   category.DocumentType,
			LatestRevision: revision,
			Fields:         docFields,
			CreatedOn:      now,
			UpdatedOn:      now,
		}
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return nil, nil, fmt.Errorf("create document: %w", err)
		}
	} else {
		next := *doc
		next.Title = fields[FieldTitle]
		next.Fields = mergeFields(doc.Fields, docFields)
		next.LatestRevision = max(doc.LatestRevision, revision)
		next.UpdatedOn = now
		if err := repos.Documents().Update(ctx, &next); err != nil {
			return nil, nil, fmt.Errorf("update document: %w", err)
		}
		doc = &next
	}

	docclass := 1
	if n, err := strconv.Atoi(fields[FieldDocclass]); err == nil {
		docclass = n
	}
	if rev == nil {
		rev = &domain.Revision{
			ID:           uuid.NewString(),
			DocumentID:   doc.ID,
			DocumentKey:  doc.DocumentKey,
			DocumentType: doc.DocumentType,
			Category:     doc.Category,
			Revision:     revision,
			Title:        doc.Title,
			Status:       fields[FieldStatus],
			Docclass:     docclass,
			Fields:       revFields,
			Distribution: distributionFrom(fields, nil),
			CreatedOn:    now,
			UpdatedOn:    now,
		}
		if err := repos.Revisions().Create(ctx, rev); err != nil {
			return nil, nil, fmt.Errorf("create revision: %w", err)
		}
		return doc, rev, nil
	}

	next := *rev
	next.Title = doc.Title
	next.Status = fields[FieldStatus]
	next.Docclass = docclass
	next.Fields = mergeFields(rev.Fields, revFields)
	if !rev.IsUnderReview() {
		next.Distribution = distributionFrom(fields, rev)
	}
	next.UpdatedOn = now
	if err := repos.Revisions().Update(ctx, &next); err != nil {
		return nil, nil, fmt.Errorf("update revision: %w", err)
	}
	return doc, &next, nil
}

// splitFields separates schema fields into document and revision level values.
func splitFields(category domain.Category, fields map[string]string) (map[string]string, map[string]string) {
	docFields, revFields := map[string]string{}, map[string]string{}
	for _, spec := range category.Fields {
		value, ok := fields[spec.Name]
		if !ok {
			continue
		}
		if spec.Revision {
			revFields[spec.Name] = value
		} else {
			docFields[spec.Name] = value
		}
	}
	return docFields, revFields
}

func mergeFields(current, updates map[string]string) map[string]string {
	out := make(map[string]string, len(current)+len(updates))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range updates {
		out[k] = v
	}
	return out
}

// distributionFrom reads the distribution list from fields, falling back to
// the revision's list when the fields carry none.
func distributionFrom(fields map[string]string, rev *domain.Revision) domain.DistributionList {
	_, hasLeader := fields[FieldLeader]
	_, hasReviewers := fields[FieldReviewers]
	if !hasLeader && !hasReviewers && rev != nil {
		return rev.Distribution
	}
	list := domain.DistributionList{
		Leader:   strings.TrimSpace(fields[FieldLeader]),
		Approver: strings.TrimSpace(fields[FieldApprover]),
	}
	for _, r := range strings.Split(fields[FieldReviewers], ",") {
		if r = strings.TrimSpace(r); r != "" {
			list.Reviewers = append(list.Reviewers, r)
		}
	}
	return list
}

func distributionChanged(fields map[string]string, rev *domain.Revision) bool {
	next := distributionFrom(fields, rev)
	cur := rev.Distribution
	return next.Leader != cur.Leader || next.Approver != cur.Approver || !slices.Equal(next.Reviewers, cur.Reviewers)
}
