package pdfinfo

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Inspector reads PDF metadata from disk.
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

// PageCount returns the number of pages. Malformed files yield an error.
func (i *Inspector) PageCount(ctx context.Context, path string) (n int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	// The parser panics on some corrupt cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("parse pdf %s: %v", path, rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}
