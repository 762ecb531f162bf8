package export

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"

	"qbank/internal/logger"
)

const pluginFilePrefix = "@@PLUGINFILE@@/"

// ImageLoader returns the question-role image of a question. A nil result
// with a nil error means the question has no image.
type ImageLoader interface {
	QuestionImage(ctx context.Context, questionID int64) (*Image, error)
}

type Image struct {
	Name string
	Data []byte
}

type moodleQuiz struct {
	XMLName   xml.Name         `xml:"quiz"`
	Questions []moodleQuestion `xml:"question"`
}

type moodleQuestion struct {
	Type         string             `xml:"type,attr"`
	Name         moodleText         `xml:"name"`
	QuestionText moodleQuestionText `xml:"questiontext"`
	Answers      []moodleAnswer     `xml:"answer"`
}

type moodleText struct {
	Text string `xml:"text"`
}

type moodleQuestionText struct {
	Format string       `xml:"format,attr"`
	Text   moodleCDATA  `xml:"text"`
	Files  []moodleFile `xml:"file"`
}

type moodleCDATA struct {
	Body string `xml:",cdata"`
}

type moodleFile struct {
	Name     string `xml:"name,attr"`
	Encoding string `xml:"encoding,attr"`
	Data     string `xml:",chardata"`
}

type moodleAnswer struct {
	Fraction string `xml:"fraction,attr"`
	Text     string `xml:"text"`
	Feedback string `xml:"feedback"`
}

// WriteMoodleXML writes items as a Moodle XML quiz of multichoice questions.
// Images are best effort: a loader failure drops the image, never the item.
func WriteMoodleXML(ctx context.Context, w io.Writer, items []Item, images ImageLoader, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	quiz := moodleQuiz{Questions: make([]moodleQuestion, 0, len(items))}
	for _, it := range items {
		quiz.Questions = append(quiz.Questions, moodleQuestionFor(ctx, it, images, log))
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(quiz); err != nil {
		return fmt.Errorf("encode moodle xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush moodle xml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func moodleQuestionFor(ctx context.Context, it Item, images ImageLoader, log *logger.Logger) moodleQuestion {
	name := it.Name
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Q%d", it.QuestionID)
	}
	q := moodleQuestion{
		Type: "multichoice",
		Name: moodleText{Text: name},
		QuestionText: moodleQuestionText{
			Format: "html",
		},
	}

	stem := "<p>" + html.EscapeString(strings.TrimSpace(xmlSafe(it.Text))) + "</p>"
	if images != nil {
		img, err := images.QuestionImage(ctx, it.QuestionID)
		switch {
		case err != nil:
			log.Debug("moodle export: skip question image", "question_id", it.QuestionID, "error", err)
		case img != nil && len(img.Data) > 0:
			filename := filepath.Base(xmlSafe(img.Name))
			stem = `<p><img src="` + pluginFilePrefix + html.EscapeString(filename) + `" /></p>` + stem
			q.QuestionText.Files = append(q.QuestionText.Files, moodleFile{
				Name:     filename,
				Encoding: "base64",
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			})
		}
	}
	q.QuestionText.Text = moodleCDATA{Body: stem}

	correct := normalizeLabel(it.Correct)
	for i, text := range it.Options {
		if strings.TrimSpace(text) == "" {
			continue
		}
		fraction := "0"
		if Labels[i] == correct {
			fraction = "100"
		}
		q.Answers = append(q.Answers, moodleAnswer{
			Fraction: fraction,
			Text:     html.EscapeString(strings.TrimSpace(text)),
		})
	}
	return q
}

// xmlSafe drops runes outside the XML 1.0 Char production. CDATA sections are
// written verbatim, so anything going into one must be cleaned first.
func xmlSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return -1
	}, s)
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF, r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}
