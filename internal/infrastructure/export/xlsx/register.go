package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

const sheetName = "Register"

var registerHeader = []any{"Document Number", "Revision", "Title", "Status", "Return Code"}

// Register writes the revision list of an outgoing transmittal as an xlsx file
// named after the transmittal key.
type Register struct {
	dir string
}

func New(dir string) (*Register, error) {
	if dir == "" {
		dir = "./data/outgoing"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create outgoing dir: %w", err)
	}
	return &Register{dir: dir}, nil
}

func (r *Register) Export(ctx context.Context, trs *domain.OutgoingTransmittal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}

	cover := [][]any{
		{"Transmittal", trs.DocumentKey},
		{"Contract", trs.Contract},
		{"From", trs.Originator},
		{"To", trs.Recipient},
		{"Purpose of issue", trs.PurposeOfIssue},
		{"Date", trs.TransmittalDate.Format(time.DateOnly)},
		{},
		registerHeader,
	}
	row := 1
	for _, values := range cover {
		if err := r.setRow(f, row, values); err != nil {
			return "", err
		}
		row++
	}
	for _, rev := range trs.Revisions {
		values := []any{rev.DocumentKey, fmt.Sprintf("%02d", rev.Revision), rev.Title, rev.Status, rev.ReturnCode}
		if err := r.setRow(f, row, values); err != nil {
			return "", err
		}
		row++
	}
	if err := f.SetColWidth(sheetName, "A", "A", 28); err != nil {
		return "", fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "C", "C", 48); err != nil {
		return "", fmt.Errorf("set column width: %w", err)
	}

	path := filepath.Join(r.dir, trs.DocumentKey+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save register: %w", err)
	}
	return path, nil
}

func (r *Register) setRow(f *excelize.File, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
