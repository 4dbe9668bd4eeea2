// Package ingest harvests candidate source URLs from uploaded spreadsheets.
// Validation is not done here; the url filter owns that.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadURLs parses the upload according to its file extension and returns
// every cell that looks like an http(s) URL, in document order.
func ReadURLs(r io.Reader, filename string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return FromXLSX(r)
	case ".csv":
		return FromCSV(r)
	case ".txt":
		return FromLines(r)
	default:
		return nil, fmt.Errorf("unsupported upload type %q", filepath.Ext(filename))
	}
}

// ReadURLsFile is the CLI convenience wrapper around ReadURLs.
func ReadURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadURLs(f, path)
}

// FromXLSX collects URL-shaped cells from every sheet of the workbook.
func FromXLSX(r io.Reader) ([]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var urls []string
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			for _, cell := range row {
				if isURLCell(cell) {
					urls = append(urls, strings.TrimSpace(cell))
				}
			}
		}
	}
	return urls, nil
}

// FromCSV collects URL-shaped cells from a CSV document. Ragged rows are
// tolerated; exports from spreadsheet tools rarely keep columns aligned.
func FromCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var urls []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		for _, cell := range row {
			if isURLCell(cell) {
				urls = append(urls, strings.TrimSpace(cell))
			}
		}
	}
	return urls, nil
}

// FromLines reads one URL candidate per line.
func FromLines(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); isURLCell(line) {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return urls, nil
}

func isURLCell(cell string) bool {
	s := strings.TrimSpace(cell)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
