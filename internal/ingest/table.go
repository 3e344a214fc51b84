// Package ingest decodes uploaded tabular files (delimited text or
// spreadsheet) into detector and vehicle-pass rows. Malformed rows are a
// normal outcome: parsers skip and count them instead of failing the batch.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat marks a file whose extension is neither .csv nor .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ReadTable decodes the whole upload into rows of string cells. The first
// row is the header; callers discard it. A file that cannot be decoded as
// its declared container format at all is a fatal error that aborts the
// batch.
func ReadTable(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readCSV(r)
	case ".xlsx":
		return readXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("decode xlsx: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("decode xlsx: workbook has no sheets")
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("decode xlsx: %w", err)
	}
	return rows, nil
}

// trimCells trims every cell, preserving the cell count: a trailing empty
// cell is a present-but-blank column, and the row parsers dispatch on how
// many columns the row actually carries.
func trimCells(row []string) []string {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = strings.TrimSpace(cell)
	}
	return cells
}
