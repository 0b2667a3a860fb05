package ves

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/extrame/xls"
)

var errCorruptWorkbook = errors.New("corrupt or unsupported workbook")

// Sheet is a single positionally-addressed workbook sheet
type Sheet interface {
	// Cell returns the textual value of the cell at the 0-indexed position
	Cell(row, col int) string

	// LastCell returns the textual value of the last non-empty cell in the row
	LastCell(row int) string
}

// WorkbookOpener opens a cached workbook file
type WorkbookOpener interface {
	Open(path string) ([]Sheet, error)
}

// Grid is an in-memory sheet, indexed by [row][col]
type Grid [][]string

func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return ""
	}

	return g[row][col]
}

func (g Grid) LastCell(row int) string {
	if row < 0 || row >= len(g) {
		return ""
	}

	for col := len(g[row]) - 1; col >= 0; col-- {
		if v := strings.TrimSpace(g[row][col]); v != "" {
			return v
		}
	}

	return ""
}

type xlsOpener struct {
	charset string
}

// XLSOpener returns the legacy (BIFF) .xls workbook opener
func XLSOpener() WorkbookOpener {
	return &xlsOpener{
		charset: "utf-8",
	}
}

// Open reads every sheet of the workbook into memory. Numeric and formula
// cells are rendered as plain decimals
func (o *xlsOpener) Open(path string) (sheets []Sheet, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open workbook: %w", err)
	}
	defer f.Close()

	// The decoder panics on some malformed records
	defer func() {
		if r := recover(); r != nil {
			sheets = nil
			err = fmt.Errorf("%w: %v", errCorruptWorkbook, r)
		}
	}()

	stream, err := readWorkbookStream(f, o.charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptWorkbook, err)
	}

	raw := scanSheets(stream)

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("unable to rewind workbook: %w", err)
	}

	wb, err := xls.OpenReader(f, o.charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptWorkbook, err)
	}

	sheets = make([]Sheet, 0, wb.NumSheets())

	for i := range wb.NumSheets() {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}

		rs := newRawSheet()
		if i < len(raw) {
			rs = raw[i]
		}

		sheets = append(sheets, buildGrid(ws, rs))
	}

	return sheets, nil
}

// buildGrid merges the decoded sheet with its raw record values
func buildGrid(ws *xls.WorkSheet, rs *rawSheet) Grid {
	grid := make(Grid, int(ws.MaxRow)+1)

	for r := range grid {
		row := sheetRow(ws, r)

		width := rs.widths[r]
		if row != nil && row.LastCol() > width {
			width = row.LastCol()
		}

		if width == 0 {
			continue
		}

		cells := make([]string, width)

		for c := range cells {
			if v, ok := rs.values[cellKey{row: r, col: c}]; ok {
				cells[c] = v

				continue
			}

			if row != nil {
				cells[c] = row.Col(c)
			}
		}

		grid[r] = cells
	}

	return grid
}

// sheetRow returns the decoded row, or nil if the sheet has no such row.
// WorkSheet.Row dereferences the missing row instead of returning nil
func sheetRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if r := recover(); r != nil {
			row = nil
		}
	}()

	return ws.Row(i)
}
