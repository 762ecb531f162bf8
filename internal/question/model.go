package question

import (
	"fmt"
	"strings"
	"time"
)

const OptionCount = 5

// Labels are the option letters in their fixed order.
var Labels = [OptionCount]string{"A", "B", "C", "D", "E"}

const (
	TypeTheoric = "theoric"
	TypePratic  = "pratic"
)

type Option struct {
	Label    string  `json:"label"`
	Text     string  `json:"text"`
	Fraction float64 `json:"fraction"`
}

type Question struct {
	ID              int64               `json:"id"`
	CourseID        int64               `json:"course_id"`
	CourseName      string              `json:"course_name,omitempty"`
	LecturerID      *int64              `json:"lecturer_id,omitempty"`
	Name            string              `json:"name"`
	QuestionText    string              `json:"question_text"`
	GeneralFeedback string              `json:"general_feedback"`
	DefaultGrade    float64             `json:"default_grade"`
	Penalty         float64             `json:"penalty"`
	Hidden          bool                `json:"hidden"`
	Single          bool                `json:"single"`
	ShuffleAnswers  bool                `json:"shuffle_answers"`
	AnswerNumbering string              `json:"answer_numbering"`
	Options         [OptionCount]Option `json:"options"`
	CorrectAnswer   string              `json:"correct_answer"`
	Tag1            string              `json:"tag_1"`
	Tag2            string              `json:"tag_2"`
	Type            string              `json:"type"`
	Active          bool                `json:"active"`
	HasPicture      bool                `json:"has_picture"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// LabelIndex returns the option index for a label, or -1.
func LabelIndex(label string) int {
	label = strings.ToUpper(strings.TrimSpace(label))
	for i, l := range Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Validate checks the answer key against the options.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.QuestionText) == "" {
		return fmt.Errorf("%w: question_text is required", ErrInvalidInput)
	}
	if q.Type != TypeTheoric && q.Type != TypePratic {
		return fmt.Errorf("%w: type must be theoric or pratic", ErrInvalidInput)
	}
	idx := LabelIndex(q.CorrectAnswer)
	if idx < 0 {
		return fmt.Errorf("%w: correct_answer must be one of A-E", ErrInvalidInput)
	}
	if strings.TrimSpace(q.Options[idx].Text) == "" {
		return fmt.Errorf("%w: text of option %s must not be empty", ErrInvalidInput, Labels[idx])
	}
	for _, o := range q.Options {
		if o.Fraction < -1 || o.Fraction > 1 {
			return fmt.Errorf("%w: fraction of option %s must be between -1 and 1", ErrInvalidInput, o.Label)
		}
	}
	if q.DefaultGrade < 0 || q.Penalty < 0 || q.Penalty > 1 {
		return fmt.Errorf("%w: default_grade and penalty are out of range", ErrInvalidInput)
	}
	return nil
}

// normalize runs before every save. Course data wins over client data for the
// denormalized fields; single-answer questions get a 1/0 fraction vector.
func (q *Question) normalize(course courseContext) {
	q.Name = strings.TrimSpace(q.Name)
	q.QuestionText = strings.TrimSpace(q.QuestionText)
	q.CorrectAnswer = strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
	if len(q.CorrectAnswer) > 1 {
		q.CorrectAnswer = q.CorrectAnswer[:1]
	}
	if q.Type == "" {
		q.Type = TypeTheoric
	}
	if strings.TrimSpace(q.AnswerNumbering) == "" {
		q.AnswerNumbering = "ABCD"
	}
	for i := range q.Options {
		q.Options[i].Label = Labels[i]
		q.Options[i].Text = strings.TrimSpace(q.Options[i].Text)
	}

	q.CourseID = course.ID
	q.CourseName = course.Name
	q.LecturerID = course.LecturerID
	if strings.TrimSpace(q.Tag1) == "" {
		q.Tag1 = course.Name
	}
	if strings.TrimSpace(q.Tag2) == "" {
		q.Tag2 = course.LecturerName
	}

	if q.Single {
		correct := LabelIndex(q.CorrectAnswer)
		for i := range q.Options {
			q.Options[i].Fraction = 0
			if i == correct {
				q.Options[i].Fraction = 1
			}
		}
	}
}
