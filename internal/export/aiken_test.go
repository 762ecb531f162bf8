package export

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteAiken(t *testing.T) {
	items := []Item{
		{Text: "  What   is\n the  first? ", Options: [5]string{"One", "  two\tlines\n here ", "", "four", ""}, Correct: " a "},
		{Text: "   ", Options: [5]string{"x", "y"}, Correct: "A"},
		{Text: "Bad letter", Options: [5]string{"x", "y"}, Correct: "Z"},
		{Text: "No letter", Options: [5]string{"x", "y"}, Correct: ""},
		{Text: "Last", Options: [5]string{"yes", "no"}, Correct: "bee"},
	}
	var buf bytes.Buffer
	if err := WriteAiken(&buf, items); err != nil {
		t.Fatalf("write aiken: %v", err)
	}
	want := "What is the first?\n" +
		"A. One\n" +
		"B. two lines here\n" +
		"D. four\n" +
		"ANSWER: A\n" +
		"\n" +
		"Last\n" +
		"A. yes\n" +
		"B. no\n" +
		"ANSWER: B\n"
	if got := buf.String(); got != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", got, want)
	}
}

func TestWriteAikenEndsWithSingleNewline(t *testing.T) {
	cases := [][]Item{
		nil,
		{{Text: "Only", Options: [5]string{"a"}, Correct: "A"}},
	}
	for _, items := range cases {
		var buf bytes.Buffer
		if err := WriteAiken(&buf, items); err != nil {
			t.Fatalf("write aiken: %v", err)
		}
		out := buf.String()
		if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
			t.Fatalf("output must end with exactly one newline: %q", out)
		}
	}
}

func TestAikenRoundTrip(t *testing.T) {
	items := []Item{
		{Text: "Capital of France?", Options: [5]string{"Paris", "Rome", "Berlin"}, Correct: "A"},
		{Text: "Largest  organ?", Options: [5]string{"Heart", "", "Skin", "Liver", "Lung"}, Correct: "c"},
		{Text: "", Options: [5]string{"x"}, Correct: "A"},
	}
	var buf bytes.Buffer
	if err := WriteAiken(&buf, items); err != nil {
		t.Fatalf("write aiken: %v", err)
	}
	got, err := ParseAiken(&buf)
	if err != nil {
		t.Fatalf("parse aiken: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got))
	}
	if got[0].Text != "Capital of France?" || got[0].Answer != "A" || len(got[0].Options) != 3 {
		t.Fatalf("unexpected first question: %+v", got[0])
	}
	second := got[1]
	if second.Text != "Largest organ?" || second.Answer != "C" {
		t.Fatalf("unexpected second question: %+v", second)
	}
	labels := make([]string, 0, len(second.Options))
	for _, o := range second.Options {
		labels = append(labels, o.Label)
	}
	if strings.Join(labels, "") != "ACDE" {
		t.Fatalf("blank option B should be absent, got labels %v", labels)
	}
	if second.Options[1].Text != "Skin" {
		t.Fatalf("unexpected option C: %+v", second.Options[1])
	}
}

func TestParseAikenRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing answer":       "Stem\nA. one\nB. two\n",
		"answer not an option": "Stem\nA. one\nANSWER: B\n",
		"malformed option":     "Stem\nnot an option\nANSWER: A\n",
		"text after answer":    "Stem\nA. one\nANSWER: A\nB. late\n",
		"bad label":            "Stem\nF. six\nANSWER: F\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAiken(strings.NewReader(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"a":   "A",
		" e ": "E",
		"bee": "B",
		"":    "",
		"   ": "",
		"z":   "Z",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Fatalf("normalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
	if labelIndex("Z") != -1 || labelIndex("C") != 2 {
		t.Fatalf("unexpected label index")
	}
}

func TestWriteAikenSkipsBlankAnswerOption(t *testing.T) {
	items := []Item{
		{Text: "Answer points at nothing", Options: [5]string{"one", "  ", "three"}, Correct: "B"},
		{Text: "Kept", Options: [5]string{"one", "two"}, Correct: "A"},
	}
	var buf bytes.Buffer
	if err := WriteAiken(&buf, items); err != nil {
		t.Fatalf("write aiken: %v", err)
	}
	if want := "Kept\nA. one\nB. two\nANSWER: A\n"; buf.String() != want {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if _, err := ParseAiken(&buf); err != nil {
		t.Fatalf("output should parse back: %v", err)
	}
}
