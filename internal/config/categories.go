package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// CategoriesFile is the yaml layout of CATEGORIES_FILE.
type CategoriesFile struct {
	DocumentTypes []domain.DocumentType `yaml:"document_types"`
	Categories    []domain.Category     `yaml:"categories"`
}

// Catalog resolves categories by slug and by importing organisation.
type Catalog struct {
	bySlug   map[string]domain.Category
	byImport map[string]domain.Category
	registry *domain.TypeRegistry
}

func ParseCategories(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("categories: payload is empty")
	}
	var file CategoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("categories: decode: %w", err)
	}
	return NewCatalog(file)
}

func LoadCategoriesFile(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("categories: read %s: %w", path, err)
	}
	catalog, err := ParseCategories(content)
	if err != nil {
		return nil, fmt.Errorf("categories: %s: %w", path, err)
	}
	return catalog, nil
}

func NewCatalog(file CategoriesFile) (*Catalog, error) {
	types := file.DocumentTypes
	if len(types) == 0 {
		types = domain.DefaultDocumentTypes()
	}
	registry := domain.NewTypeRegistry(types...)

	c := &Catalog{
		bySlug:   make(map[string]domain.Category, len(file.Categories)),
		byImport: make(map[string]domain.Category),
		registry: registry,
	}
	for _, cat := range file.Categories {
		cat.Slug = strings.TrimSpace(cat.Slug)
		if cat.Slug == "" {
			return nil, fmt.Errorf("categories: category without slug")
		}
		if _, dup := c.bySlug[cat.Slug]; dup {
			return nil, fmt.Errorf("categories: duplicate slug %q", cat.Slug)
		}
		if _, ok := registry.Lookup(cat.DocumentType); !ok {
			return nil, fmt.Errorf("categories: %s: unknown document type %q", cat.Slug, cat.DocumentType)
		}
		if cat.ImportEnabled {
			if cat.Organisation == "" {
				return nil, fmt.Errorf("categories: %s: import requires an organisation", cat.Slug)
			}
			if len(cat.Columns) == 0 {
				return nil, fmt.Errorf("categories: %s: import requires a column mapping", cat.Slug)
			}
			if prev, dup := c.byImport[cat.Organisation]; dup {
				return nil, fmt.Errorf("categories: %s and %s both import for %s", prev.Slug, cat.Slug, cat.Organisation)
			}
			c.byImport[cat.Organisation] = cat
		}
		c.bySlug[cat.Slug] = cat
	}
	for slug, cat := range c.bySlug {
		if cat.OutgoingCategory == "" {
			continue
		}
		if _, ok := c.bySlug[cat.OutgoingCategory]; !ok {
			return nil, fmt.Errorf("categories: %s: unknown outgoing category %q", slug, cat.OutgoingCategory)
		}
	}
	return c, nil
}

func (c *Catalog) Category(slug string) (domain.Category, bool) {
	cat, ok := c.bySlug[slug]
	return cat, ok
}

// ImportCategory returns the category incoming transmittals from originator land in.
func (c *Catalog) ImportCategory(originator string) (domain.Category, bool) {
	cat, ok := c.byImport[originator]
	return cat, ok
}

func (c *Catalog) Registry() *domain.TypeRegistry {
	return c.registry
}

func (c *Catalog) Slugs() []string {
	out := make([]string, 0, len(c.bySlug))
	for slug := range c.bySlug {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}
