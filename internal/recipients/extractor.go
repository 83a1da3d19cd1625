package recipients

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

const (
	FormatText = "txt"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatXLS  = "xls"
)

// emailColumns are matched case-insensitively against header cells, in order.
var emailColumns = []string{"email", "e-mail", "mail"}

var (
	utf8BOM   = []byte{0xEF, 0xBB, 0xBF}
	zipHeader = []byte{'P', 'K', 0x03, 0x04}
)

// FromText extracts candidate addresses from pasted text. Tokens are separated
// by any run of whitespace, commas, semicolons or pipes; tokens without an '@'
// are not candidates and are dropped silently.
func FromText(text string) []string {
	return candidates(strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '|'
	}))
}

// FromDelimited extracts candidates from the content of a plain text file.
func FromDelimited(content string) []string {
	return candidates(strings.FieldsFunc(content, func(r rune) bool {
		switch r {
		case '\r', '\n', ',', ';', '|', '\t':
			return true
		}
		return false
	}))
}

// DetectFormat maps a file name to the parser used for it. Unknown extensions
// are treated as plain text.
func DetectFormat(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	case ".csv":
		return FormatCSV
	default:
		return FormatText
	}
}

// FromFile extracts candidate addresses from an uploaded document. A document
// that cannot be read in its detected format yields a *custom_errors.ParseError.
func FromFile(name string, r io.Reader) ([]string, error) {
	format := DetectFormat(name)
	switch format {
	case FormatXLSX:
		return fromSpreadsheet(format, r)
	case FormatXLS:
		return fromLegacySpreadsheet(r)
	case FormatCSV:
		return fromCSV(r)
	default:
		content, err := io.ReadAll(r)
		if err != nil {
			return nil, &custom_errors.ParseError{Format: format, Err: err}
		}
		return FromDelimited(string(bytes.TrimPrefix(content, utf8BOM))), nil
	}
}

func fromSpreadsheet(format string, r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &custom_errors.ParseError{Format: format, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &custom_errors.ParseError{Format: format, Err: errors.New("workbook has no sheets")}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &custom_errors.ParseError{Format: format, Err: err}
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	return fromTable(rows[0], rows[1:]), nil
}

// fromLegacySpreadsheet reads a BIFF workbook. Files saved as xlsx but named
// .xls are handed to the xlsx reader.
func fromLegacySpreadsheet(r io.Reader) (emails []string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &custom_errors.ParseError{Format: FormatXLS, Err: err}
	}
	if bytes.HasPrefix(data, zipHeader) {
		return fromSpreadsheet(FormatXLS, bytes.NewReader(data))
	}

	// the BIFF reader indexes records without bounds checks
	defer func() {
		if rec := recover(); rec != nil {
			emails, err = nil, &custom_errors.ParseError{Format: FormatXLS, Err: fmt.Errorf("malformed workbook: %v", rec)}
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &custom_errors.ParseError{Format: FormatXLS, Err: err}
	}
	if wb.GetNumberSheets() == 0 {
		return nil, &custom_errors.ParseError{Format: FormatXLS, Err: errors.New("workbook has no sheets")}
	}
	sheet, err := wb.GetSheet(0)
	if err != nil {
		return nil, &custom_errors.ParseError{Format: FormatXLS, Err: err}
	}

	var table [][]string
	for _, row := range sheet.GetRows() {
		var cells []string
		for _, cell := range row.GetCols() {
			cells = append(cells, cell.GetString())
		}
		table = append(table, cells)
	}
	if len(table) == 0 {
		return []string{}, nil
	}
	return fromTable(table[0], table[1:]), nil
}

// fromCSV treats a CSV with an email header column as a table and any other
// CSV as a delimited list, so header-less files do not lose their first row.
func fromCSV(r io.Reader) ([]string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, &custom_errors.ParseError{Format: FormatCSV, Err: err}
	}
	content = bytes.TrimPrefix(content, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(content))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &custom_errors.ParseError{Format: FormatCSV, Err: err}
	}
	if len(records) == 0 {
		return []string{}, nil
	}
	if emailColumnIndex(records[0]) >= 0 {
		return fromTable(records[0], records[1:]), nil
	}
	return FromDelimited(string(content)), nil
}

// fromTable picks the first email-like column that has values. Without one it
// falls back to every cell (header included) that contains an '@'.
func fromTable(header []string, rows [][]string) []string {
	for _, name := range emailColumns {
		idx := columnIndex(header, name)
		if idx < 0 {
			continue
		}
		var out []string
		for _, row := range rows {
			if idx >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[idx]); v != "" {
				out = append(out, v)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	out := make([]string, 0)
	for _, row := range append([][]string{header}, rows...) {
		for _, cell := range row {
			if strings.Contains(cell, "@") {
				out = append(out, strings.TrimSpace(cell))
			}
		}
	}
	return out
}

func emailColumnIndex(header []string) int {
	for _, name := range emailColumns {
		if idx := columnIndex(header, name); idx >= 0 {
			return idx
		}
	}
	return -1
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func candidates(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" && strings.Contains(t, "@") {
			out = append(out, t)
		}
	}
	return out
}
