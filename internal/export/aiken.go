package export

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// WriteAiken writes items in the Aiken quiz format. Items with an empty stem,
// without a valid answer letter or whose answer option is blank are left out.
func WriteAiken(w io.Writer, items []Item) error {
	var out bytes.Buffer
	for _, it := range items {
		block, ok := aikenBlock(it)
		if !ok {
			continue
		}
		out.Write(block)
	}
	content := strings.TrimRight(out.String(), " \t\r\n") + "\n"
	_, err := io.WriteString(w, content)
	return err
}

func aikenBlock(it Item) ([]byte, bool) {
	stem := cleanLine(it.Text)
	if stem == "" {
		return nil, false
	}
	correct := normalizeLabel(it.Correct)
	idx := labelIndex(correct)
	if idx < 0 || cleanLine(it.Options[idx]) == "" {
		return nil, false
	}

	var b bytes.Buffer
	b.WriteString(stem)
	b.WriteByte('\n')
	for i, text := range it.Options {
		text = cleanLine(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s. %s\n", Labels[i], text)
	}
	fmt.Fprintf(&b, "ANSWER: %s\n\n", correct)
	return b.Bytes(), true
}

// cleanLine folds all whitespace runs into single spaces.
func cleanLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type AikenOption struct {
	Label string
	Text  string
}

type AikenQuestion struct {
	Text    string
	Options []AikenOption
	Answer  string
}

// ParseAiken reads an Aiken document back. It is strict: every block must
// have a stem, at least one option and an ANSWER line naming one of its
// options.
func ParseAiken(r io.Reader) ([]AikenQuestion, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	out := make([]AikenQuestion, 0)
	var cur *AikenQuestion
	lineNo := 0
	finish := func() error {
		if cur == nil {
			return nil
		}
		if cur.Answer == "" {
			return fmt.Errorf("line %d: question %q has no ANSWER line", lineNo, cur.Text)
		}
		out = append(out, *cur)
		cur = nil
		return nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		switch {
		case strings.TrimSpace(line) == "":
			if err := finish(); err != nil {
				return nil, err
			}
		case cur == nil:
			cur = &AikenQuestion{Text: strings.TrimSpace(line)}
		case cur.Answer != "":
			return nil, fmt.Errorf("line %d: unexpected text after ANSWER", lineNo)
		case strings.HasPrefix(line, "ANSWER:"):
			ans := strings.TrimSpace(strings.TrimPrefix(line, "ANSWER:"))
			if !hasOption(cur.Options, ans) {
				return nil, fmt.Errorf("line %d: answer %q does not match an option", lineNo, ans)
			}
			cur.Answer = ans
		default:
			label, text, ok := splitOption(line)
			if !ok {
				return nil, fmt.Errorf("line %d: malformed option %q", lineNo, line)
			}
			cur.Options = append(cur.Options, AikenOption{Label: label, Text: text})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read aiken: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitOption(line string) (string, string, bool) {
	if len(line) < 3 || line[1] != '.' || line[2] != ' ' {
		return "", "", false
	}
	label := line[:1]
	if labelIndex(label) < 0 {
		return "", "", false
	}
	return label, strings.TrimSpace(line[3:]), true
}

func hasOption(opts []AikenOption, label string) bool {
	for _, o := range opts {
		if o.Label == label {
			return true
		}
	}
	return false
}
