package template

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"healthcheck_srv/internal/domain/report"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Summary"

	maxSheetName = 31
	columnWidth  = 24
)

var sheetNameReplacer = strings.NewReplacer(
	":", "-", "\\", "-", "/", "-", "?", "", "*", "", "[", "(", "]", ")",
)

// XLSXRenderer реализует ResultRenderer для книг xlsx: лист сводки и по
// одному листу на категорию каталога.
type XLSXRenderer struct {
	logger *logrus.Logger
}

// NewXLSX возвращает рендерер XLSX.
func NewXLSX(logger *logrus.Logger) *XLSXRenderer {
	return &XLSXRenderer{logger: logger}
}

type styles struct {
	header int
	title  int
	note   int
}

// Render строит книгу по результату прогона.
func (r *XLSXRenderer) Render(result report.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания стилей: %w", err)
	}

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return nil, fmt.Errorf("ошибка переименования листа: %w", err)
	}

	namer := newSheetNamer(SummarySheet)
	sheets := make([]string, len(result.Sections))
	for i, sec := range result.Sections {
		sheets[i] = namer.name(sec.Category)
	}

	if err := writeSummary(f, st, result, sheets); err != nil {
		return nil, err
	}

	for i, sec := range result.Sections {
		if _, err := f.NewSheet(sheets[i]); err != nil {
			return nil, fmt.Errorf("ошибка создания листа %q: %w", sheets[i], err)
		}
		if err := writeSection(f, st, sheets[i], sec); err != nil {
			return nil, fmt.Errorf("ошибка записи листа %q: %w", sheets[i], err)
		}
	}
	f.SetActiveSheet(0)

	var buffer bytes.Buffer
	if err := f.Write(&buffer); err != nil {
		r.logger.WithError(err).Error("Ошибка записи Excel файла")
		return nil, fmt.Errorf("ошибка генерации Excel файла: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"sheets": len(sheets) + 1,
		"size":   buffer.Len(),
	}).Debug("Книга отчета сформирована")
	return buffer.Bytes(), nil
}

// MimeType возвращает MIME тип для Excel файлов
func (r *XLSXRenderer) MimeType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension возвращает расширение файла для Excel
func (r *XLSXRenderer) FileExtension() string {
	return "xlsx"
}

func newStyles(f *excelize.File) (styles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6E6FA"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles{}, err
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}})
	if err != nil {
		return styles{}, err
	}
	note, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true, Color: "808080"}})
	if err != nil {
		return styles{}, err
	}
	return styles{header: header, title: title, note: note}, nil
}

func writeSummary(f *excelize.File, st styles, result report.Result, sheets []string) error {
	rows := [][]any{
		{"Started", result.StartedAt.Format(time.RFC3339)},
		{"Finished", result.FinishedAt.Format(time.RFC3339)},
		{},
		{"Category", "Sheet", "Entries", "Executed", "Skipped", "Failed"},
	}
	for i, sec := range result.Sections {
		rows = append(rows, []any{
			sec.Category,
			sheets[i],
			len(sec.Tables),
			sec.Count(report.StatusOK),
			sec.Count(report.StatusSkipped),
			sec.Count(report.StatusFailed),
		})
	}
	entries := 0
	for _, sec := range result.Sections {
		entries += len(sec.Tables)
	}
	rows = append(rows, []any{"Total", "", entries, result.Executed(), result.Skipped(), result.Failed()})

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("ошибка записи сводки: %w", err)
		}
	}

	if err := f.SetCellStyle(SummarySheet, "A4", "F4", st.header); err != nil {
		return err
	}
	total := fmt.Sprintf("A%d", len(rows))
	if err := f.SetCellStyle(SummarySheet, total, total, st.title); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "F", columnWidth)
}

func writeSection(f *excelize.File, st styles, sheet string, sec report.Section) error {
	w := sectionWriter{f: f, st: st, sheet: sheet, row: 1}

	if len(sec.Tables) == 0 {
		w.title(sec.Category)
		w.note("No reports defined")
		return w.err
	}

	width := 1
	for _, t := range sec.Tables {
		w.title(t.Label)
		switch {
		case t.Status == report.StatusSkipped:
			w.note("Not yet implemented")
		case t.Status == report.StatusFailed:
			w.note("Error: " + t.Error)
		case len(t.Columns) == 0:
			w.note("No rows")
		default:
			w.header(t.Columns)
			for _, row := range t.Rows {
				w.values(row)
			}
			if len(t.Rows) == 0 {
				w.note("No rows")
			}
			width = max(width, len(t.Columns))
		}
		w.row++
	}
	if w.err != nil {
		return w.err
	}

	last, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", last, columnWidth)
}

// sectionWriter appends rows to one sheet and keeps the first error.
type sectionWriter struct {
	f     *excelize.File
	st    styles
	sheet string
	row   int
	err   error
}

func (w *sectionWriter) cell(col int) string {
	name, _ := excelize.CoordinatesToCellName(col, w.row)
	return name
}

func (w *sectionWriter) styled(value string, style int) {
	if w.err != nil {
		return
	}
	cell := w.cell(1)
	if w.err = w.f.SetCellValue(w.sheet, cell, value); w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, cell, cell, style)
	}
	w.row++
}

func (w *sectionWriter) title(s string) { w.styled(s, w.st.title) }

func (w *sectionWriter) note(s string) { w.styled(s, w.st.note) }

func (w *sectionWriter) header(cols []string) {
	if w.err != nil {
		return
	}
	if w.err = w.f.SetSheetRow(w.sheet, w.cell(1), &cols); w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, w.cell(1), w.cell(len(cols)), w.st.header)
	}
	w.row++
}

func (w *sectionWriter) values(row []any) {
	if w.err != nil {
		return
	}
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = cellValue(v)
	}
	w.err = w.f.SetSheetRow(w.sheet, w.cell(1), &out)
	w.row++
}

func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string, bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// sheetNamer produces valid, unique sheet names. Excel compares sheet
// names case-insensitively.
type sheetNamer struct {
	used map[string]bool
}

func newSheetNamer(reserved ...string) *sheetNamer {
	n := &sheetNamer{used: make(map[string]bool)}
	for _, r := range reserved {
		n.used[strings.ToLower(r)] = true
	}
	return n
}

func (n *sheetNamer) name(category string) string {
	base := strings.Trim(sheetNameReplacer.Replace(category), "' ")
	if base == "" {
		base = "Sheet"
	}
	base = truncate(base, maxSheetName)

	name := base
	for i := 2; n.used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncate(base, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	n.used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
