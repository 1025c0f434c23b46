// Package importer turns an uploaded lead spreadsheet into dispatch leads.
package importer

import (
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	"github.com/viniciusxv27/enviomkt/internal/domain"
)

// Spreadsheet headers read into a lead.
const (
	ColumnFilial      = "Filial"
	ColumnData        = "Data"
	ColumnNome        = "Nome Cliente"
	ColumnPlano       = "Plano"
	ColumnTelefone    = "Acesso"
	ColumnComplemento = "Complemento"
)

const (
	MsgFileRequired  = "Arquivo Excel é obrigatório"
	MsgFileNotChosen = "Nenhum arquivo Excel foi selecionado"
	MsgInvalidFile   = "Por favor, selecione um arquivo Excel válido (.xlsx)"
)

// DateLayout is how date cells are written into a lead.
const DateLayout = "2006-01-02 15:04:05"

// ValidateUpload checks the uploaded spreadsheet before anything is read.
func ValidateUpload(fh *multipart.FileHeader) error {
	if fh == nil {
		return domain.NewValidationError(MsgFileRequired)
	}
	if strings.TrimSpace(fh.Filename) == "" {
		return domain.NewValidationError(MsgFileNotChosen)
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx") {
		return domain.NewValidationError(MsgInvalidFile)
	}
	return nil
}

// ParseFile reads leads from an xlsx file on disk.
func ParseFile(path string) ([]domain.Lead, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return parseWorkbook(f)
}

// Parse reads leads from an xlsx stream.
func Parse(r io.Reader) ([]domain.Lead, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return parseWorkbook(f)
}

func parseWorkbook(f *excelize.File) ([]domain.Lead, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []domain.Lead{}, nil
	}
	rows, err := readRows(f, sheets[0])
	if err != nil {
		return nil, err
	}
	records, err := Records(rows)
	if err != nil {
		return nil, err
	}
	return LeadsFromRecords(records), nil
}

// readRows returns cell values without number formats applied. Date cells are rendered with DateLayout.
func readRows(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	for r, row := range rows {
		for c, v := range row {
			if v == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			rows[r][c] = cellText(f, sheet, axis, v, date1904)
		}
	}
	return rows, nil
}

// cellText renders a raw cell value the way it is sent to the webhook.
func cellText(f *excelize.File, sheet, axis, raw string, date1904 bool) string {
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return raw
	}
	switch typ {
	case excelize.CellTypeBool:
		if raw == "1" {
			return "True"
		}
		return "False"
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format(DateLayout)
			}
		}
		return raw
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		serial, err := strconv.ParseFloat(raw, 64)
		if err != nil || !isDateCell(f, sheet, axis) {
			return raw
		}
		t, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			return raw
		}
		return t.Format(DateLayout)
	}
	return raw
}

// Built-in number format ids that render dates or times.
var dateFormatIDs = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

func isDateCell(f *excelize.File, sheet, axis string) bool {
	styleID, err := f.GetCellStyle(sheet, axis)
	if err != nil || styleID == 0 {
		return false
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt)
	}
	return dateFormatIDs[style.NumFmt]
}

// isDateFormat reports whether a custom number format code has date or time tokens outside quotes and brackets.
func isDateFormat(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(b.String(), "ydhs")
}

// Records converts sheet rows (header first) into one map per data row, every value a string or nil.
func Records(rows [][]string) ([]map[string]interface{}, error) {
	rows = dropTrailingBlankRows(rows)
	if len(rows) <= 1 {
		return []map[string]interface{}{}, nil
	}

	width := len(rows[0])
	if width == 0 {
		return []map[string]interface{}{}, nil
	}
	// GetRows trims trailing empty cells, so rows come back ragged
	table := make([][]string, len(rows))
	for i, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		table[i] = padded
	}
	table[0] = uniqueHeaders(table[0])

	df := dataframe.LoadRecords(table,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("load rows: %w", df.Err)
	}
	return df.Maps(), nil
}

// uniqueHeaders keeps the first occurrence of a name and suffixes later ones with .1, .2 and so on.
// Blank headers become "Unnamed: <index>".
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	used := make(map[string]bool, len(header))
	for i, base := range header {
		base = strings.TrimSpace(base)
		if base == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		name := base
		for n := seen[base]; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		seen[base]++
		used[name] = true
		out[i] = name
	}
	return out
}

func dropTrailingBlankRows(rows [][]string) [][]string {
	for len(rows) > 0 && isBlankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// LeadsFromRecords maps records to leads in order. Missing or blank cells become "".
func LeadsFromRecords(records []map[string]interface{}) []domain.Lead {
	leads := make([]domain.Lead, 0, len(records))
	for _, rec := range records {
		leads = append(leads, domain.Lead{
			Filial:      cell(rec, ColumnFilial),
			Data:        cell(rec, ColumnData),
			Nome:        cell(rec, ColumnNome),
			Plano:       cell(rec, ColumnPlano),
			Telefone:    cell(rec, ColumnTelefone),
			Complemento: cell(rec, ColumnComplemento),
		})
	}
	return leads
}

func cell(rec map[string]interface{}, column string) string {
	switch v := rec[column].(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(v)
		if isFalsy(s) {
			return ""
		}
		return s
	case float64:
		if math.IsNaN(v) || v == 0 {
			return ""
		}
		if v == math.Trunc(v) {
			return fmt.Sprintf("%.0f", v)
		}
		return fmt.Sprint(v)
	case int:
		if v == 0 {
			return ""
		}
		return fmt.Sprint(v)
	case bool:
		if !v {
			return ""
		}
		return "true"
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// isFalsy matches the text of cells that hold no usable value: NaN, numeric zero and boolean false.
func isFalsy(s string) bool {
	switch strings.ToLower(s) {
	case "nan", "false":
		return true
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == 0
}
