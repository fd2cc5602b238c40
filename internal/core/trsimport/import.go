package trsimport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

// Import is one incoming transmittal directory loaded for validation.
type Import struct {
	Basename string
	Dir      string
	// Parts is nil when the directory name is not a transmittal key.
	Parts    *domain.TransmittalKeyParts
	Category domain.Category
	// HasCategory is false when no category imports from the originator.
	HasCategory bool

	Manifest    *domain.Manifest
	ManifestErr error
	Files       []string

	repos ports.Repos
	fs    ports.TransmittalFS
	form  ports.DocumentForm
	docs  map[string]*domain.Document
	lines []*Line
}

// CSVPath is where the manifest of the directory is expected.
func (imp *Import) CSVPath() string {
	return filepath.Join(imp.Dir, imp.Basename+".csv")
}

// PDFFiles returns the PDF file names found in the directory.
func (imp *Import) PDFFiles() []string {
	var out []string
	for _, name := range imp.Files {
		if isPDF(name) {
			out = append(out, name)
		}
	}
	return out
}

// Lines returns one Line per manifest row, numbered from 1.
func (imp *Import) Lines() []*Line {
	if imp.lines != nil || imp.Manifest == nil {
		return imp.lines
	}
	imp.lines = make([]*Line, 0, len(imp.Manifest.Rows))
	for i, row := range imp.Manifest.Rows {
		imp.lines = append(imp.lines, newLine(imp, i+1, row))
	}
	return imp.lines
}

// Document returns the stored document with key, or nil when none exists.
func (imp *Import) Document(ctx context.Context, key string) (*domain.Document, error) {
	if doc, ok := imp.docs[key]; ok {
		return doc, nil
	}
	doc, err := imp.repos.Documents().GetByKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		doc, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", key, err)
	}
	imp.docs[key] = doc
	return doc, nil
}

// Line is one manifest row mapped to document fields.
type Line struct {
	Number      int
	Import      *Import
	Fields      map[string]string
	DocumentKey string
	RevisionRaw string
	Status      string
	Title       string
}

func newLine(imp *Import, number int, row map[string]string) *Line {
	fields := make(map[string]string, len(imp.Category.Columns))
	for header, field := range imp.Category.Columns {
		fields[field] = strings.TrimSpace(row[header])
	}
	return &Line{
		Number:      number,
		Import:      imp,
		Fields:      fields,
		DocumentKey: fields["document_key"],
		RevisionRaw: fields["revision"],
		Status:      fields["status"],
		Title:       fields["title"],
	}
}

// Revision returns the parsed revision number, or -1 when it is malformed.
func (l *Line) Revision() int {
	if !revisionRe.MatchString(l.RevisionRaw) {
		return -1
	}
	n, err := strconv.Atoi(l.RevisionRaw)
	if err != nil {
		return -1
	}
	return n
}

// PDFName is the expected PDF file name of the line.
func (l *Line) PDFName() string {
	return fmt.Sprintf("%s_%s_%s.pdf", l.DocumentKey, l.RevisionRaw, l.Status)
}

// NativeName returns the native file sharing the PDF base name, if any.
func (l *Line) NativeName() string {
	base := strings.TrimSuffix(l.PDFName(), ".pdf")
	for _, name := range l.Import.Files {
		if isPDF(name) || isManifest(l.Import, name) {
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == base {
			return name
		}
	}
	return ""
}

// Document returns the existing document targeted by the line, or nil.
func (l *Line) Document(ctx context.Context) (*domain.Document, error) {
	if l.DocumentKey == "" {
		return nil, nil
	}
	return l.Import.Document(ctx, l.DocumentKey)
}

// ExistingRevision returns the stored revision the line would edit, or nil.
func (l *Line) ExistingRevision(ctx context.Context, doc *domain.Document) (*domain.Revision, error) {
	rev := l.Revision()
	if doc == nil || rev < 0 {
		return nil, nil
	}
	stored, err := l.Import.repos.Revisions().Get(ctx, domain.RevisionKey{DocumentID: doc.ID, Revision: rev})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load revision %s#%02d: %w", doc.DocumentKey, rev, err)
	}
	return stored, nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func isManifest(imp *Import, name string) bool {
	return name == imp.Basename+".csv"
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
