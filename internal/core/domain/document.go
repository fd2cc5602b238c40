package domain

import (
	"sort"
	"time"
)

// Document is the stable identity under which revisions accumulate.
type Document struct {
	ID             string            `json:"id"`
	DocumentKey    string            `json:"document_key"`
	Title          string            `json:"title"`
	Category       string            `json:"category"`
	DocumentType   string            `json:"document_type"`
	LatestRevision int               `json:"latest_revision"`
	Fields         map[string]string `json:"fields,omitempty"`
	IsIndexable    bool              `json:"is_indexable"`
	CreatedOn      time.Time         `json:"created_on"`
	UpdatedOn      time.Time         `json:"updated_on"`
}

// FieldSpec describes one form field of a category.
type FieldSpec struct {
	Name       string `yaml:"name" json:"name"`
	Required   bool   `yaml:"required" json:"required"`
	Pattern    string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Kind       string `yaml:"kind,omitempty" json:"kind,omitempty"`
	ChoiceList int    `yaml:"choice_list,omitempty" json:"choice_list,omitempty"`
	Revision   bool   `yaml:"revision,omitempty" json:"revision,omitempty"`
}

// Category groups documents of one type owned by one organisation.
type Category struct {
	Slug             string            `yaml:"slug" json:"slug"`
	Organisation     string            `yaml:"organisation" json:"organisation"`
	Contract         string            `yaml:"contract,omitempty" json:"contract,omitempty"`
	DocumentType     string            `yaml:"document_type" json:"document_type"`
	OutgoingCategory string            `yaml:"outgoing_category,omitempty" json:"outgoing_category,omitempty"`
	ImportEnabled    bool              `yaml:"import_enabled,omitempty" json:"import_enabled,omitempty"`
	Columns          map[string]string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Fields           []FieldSpec       `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// ColumnNames returns the expected CSV headers, sorted.
func (c Category) ColumnNames() []string {
	out := make([]string, 0, len(c.Columns))
	for name := range c.Columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DocumentType describes which protocols a document type supports.
type DocumentType struct {
	Tag           string `yaml:"tag" json:"tag"`
	Reviewable    bool   `yaml:"reviewable" json:"reviewable"`
	Transmittable bool   `yaml:"transmittable" json:"transmittable"`
}

// TypeRegistry maps document type tags to their capabilities. Built once at startup.
type TypeRegistry struct {
	types map[string]DocumentType
}

func NewTypeRegistry(types ...DocumentType) *TypeRegistry {
	reg := &TypeRegistry{types: make(map[string]DocumentType, len(types))}
	for _, t := range types {
		reg.types[t.Tag] = t
	}
	return reg
}

// DefaultDocumentTypes are used when the categories file declares none.
func DefaultDocumentTypes() []DocumentType {
	return []DocumentType{
		{Tag: "contractor_deliverable", Reviewable: true, Transmittable: true},
		{Tag: "correspondence", Reviewable: true},
		{Tag: "transmittal"},
	}
}

func (r *TypeRegistry) Lookup(tag string) (DocumentType, bool) {
	t, ok := r.types[tag]
	return t, ok
}

func (r *TypeRegistry) IsReviewable(tag string) bool {
	t, ok := r.types[tag]
	return ok && t.Reviewable
}

func (r *TypeRegistry) IsTransmittable(tag string) bool {
	t, ok := r.types[tag]
	return ok && t.Transmittable
}

// Tags lists registered tags in a stable order.
func (r *TypeRegistry) Tags() []string {
	out := make([]string, 0, len(r.types))
	for tag := range r.types {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
