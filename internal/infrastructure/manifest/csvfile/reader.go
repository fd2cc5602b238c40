package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// Reader parses import manifests: one header row then one row per revision.
type Reader struct {
	Comma rune
}

func New() *Reader {
	return &Reader{Comma: ','}
}

func (r *Reader) Read(_ context.Context, path string) (*domain.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return r.parse(f)
}

func (r *Reader) parse(src io.Reader) (*domain.Manifest, error) {
	cr := csv.NewReader(src)
	cr.Comma = r.Comma
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("manifest is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	manifest := &domain.Manifest{Columns: columns}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest row: %w", err)
		}
		if blank(record) {
			continue
		}
		row := make(map[string]string, len(columns))
		for i, name := range columns {
			row[name] = strings.TrimSpace(record[i])
		}
		manifest.Rows = append(manifest.Rows, row)
	}
	return manifest, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
