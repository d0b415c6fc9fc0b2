package parse

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// DefaultItemLabel labels the implicit item of a message without a list.
const DefaultItemLabel = "1"

var enumeratorRe = regexp.MustCompile(`(?m)(^[ \t]*|[ \t]+)(\d+)[.)\-]`)

// Item is one enumerated entry of a message body.
type Item struct {
	Label string
	Text  string
}

type enumerator struct {
	start     int // first byte of the leading whitespace
	textStart int
	label     string
}

// SplitItems splits a message body into its enumerated entries. A list
// starts with an enumerator at the beginning of a line; later entries on the
// same line are recognized when they continue the numbering ("1) a 2) b").
// Each entry runs to the next enumerator or the end of its line. ok is false
// when the body holds no list.
func SplitItems(body string) ([]Item, bool) {
	marks := findEnumerators(body)
	items := make([]Item, 0, len(marks))
	for i, m := range marks {
		end := len(body)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		if nl := strings.IndexByte(body[m.textStart:end], '\n'); nl >= 0 {
			end = m.textStart + nl
		}
		text := strings.TrimSpace(body[m.textStart:end])
		if text == "" {
			continue
		}
		items = append(items, Item{Label: m.label, Text: text})
	}
	return items, len(items) > 0
}

func findEnumerators(body string) []enumerator {
	var marks []enumerator
	prev := -1
	for _, loc := range enumeratorRe.FindAllStringSubmatchIndex(body, -1) {
		label := body[loc[4]:loc[5]]
		n, err := strconv.Atoi(label)
		if err != nil {
			continue
		}
		rest := body[loc[1]:]
		anchored := loc[2] == 0 || body[loc[2]-1] == '\n'

		switch {
		case anchored:
			// "3.30pm" is a time, not an entry.
			if rest == "" || startsWithDigit(rest) {
				continue
			}
		case prev < 0 || n != prev+1:
			continue
		case rest == "" || !startsWithSpace(rest):
			continue
		}

		marks = append(marks, enumerator{start: loc[0], textStart: loc[1], label: label})
		prev = n
	}
	return marks
}

func startsWithDigit(s string) bool {
	return s[0] >= '0' && s[0] <= '9'
}

func startsWithSpace(s string) bool {
	return unicode.IsSpace(rune(s[0]))
}
