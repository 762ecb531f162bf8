package question

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"qbank/internal/auth"
)

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
}

var importRequiredColumns = []string{"question_text", "answer_a", "answer_b", "correct_answer"}

// sheetColumns is the layout ExportExcel writes. It is a superset of what
// ImportExcel reads, so an exported sheet can be loaded into another course.
var sheetColumns = []string{
	"id", "course", "name", "question_text",
	"answer_a", "answer_b", "answer_c", "answer_d", "answer_e",
	"correct_answer", "type", "single", "general_feedback", "tag_1", "tag_2", "active",
}

const exportPageSize = 200

// ExportExcel writes every question visible to actor under f as an xlsx sheet.
func (s *Service) ExportExcel(ctx context.Context, actor *auth.Actor, f ListFilter) ([]byte, error) {
	items := make([]Question, 0)
	f.Limit = exportPageSize
	for f.Offset = 0; ; f.Offset += exportPageSize {
		page, err := s.List(ctx, actor, f)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
		if len(page) < exportPageSize {
			break
		}
	}
	return writeQuestionSheet(items)
}

func writeQuestionSheet(items []Question) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, h := range sheetColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, q := range items {
		values := []any{q.ID, q.CourseName, q.Name, q.QuestionText}
		for _, o := range q.Options {
			values = append(values, o.Text)
		}
		values = append(values, q.CorrectAnswer, q.Type, q.Single, q.GeneralFeedback, q.Tag1, q.Tag2, q.Active)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "P", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportExcel creates one question per data row of the first sheet. Rows are
// independent: a bad row is reported and the rest still load.
func (s *Service) ImportExcel(ctx context.Context, actor *auth.Actor, courseID int64, r io.Reader) (*ImportReport, error) {
	course, err := loadCourseContext(ctx, s.db, courseID)
	if err != nil {
		return nil, err
	}
	if !auth.CanAddQuestion(actor, auth.CourseRef{ID: course.ID, LecturerID: course.LecturerID}, course.ChairID) {
		return nil, ErrForbidden
	}

	rows, err := readSheetRows(r)
	if err != nil {
		return nil, err
	}
	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range importRequiredColumns {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidInput, col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		report.TotalRows++

		q, err := questionFromRow(header, row)
		if err == nil {
			q.CourseID = courseID
			_, err = s.Create(ctx, actor, q)
		}
		if err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Error: err.Error()})
			continue
		}
		report.SuccessRows++
	}
	return report, nil
}

func readSheetRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open excel: %v", ErrInvalidInput, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: excel sheet is empty", ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows found", ErrInvalidInput)
	}
	return rows, nil
}

func questionFromRow(header map[string]int, row []string) (Question, error) {
	get := func(key string) string {
		idx, ok := header[key]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	q := Question{
		Name:            get("name"),
		QuestionText:    get("question_text"),
		GeneralFeedback: get("general_feedback"),
		CorrectAnswer:   get("correct_answer"),
		Type:            strings.ToLower(get("type")),
		DefaultGrade:    1,
		Single:          true,
		ShuffleAnswers:  true,
		Active:          true,
	}
	for i, l := range Labels {
		q.Options[i].Text = get("answer_" + strings.ToLower(l))
	}
	if raw := get("single"); raw != "" {
		single, err := parseSheetBool(raw)
		if err != nil {
			return q, err
		}
		q.Single = single
	}
	if q.QuestionText == "" {
		return q, errors.New("question_text is empty")
	}
	return q, nil
}

func parseSheetBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("single must be a boolean, got %q", raw)
	}
	return v, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
