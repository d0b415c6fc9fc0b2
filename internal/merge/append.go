package merge

import "strings"

// Field delimiters of the persisted text columns.
const (
	FragmentDelimiter = "\n"
	RawTextDelimiter  = "\n---\n"
)

// AppendUnique appends fragment to a newline-delimited field unless a line
// equal to it after trimming is already present. Existing lines keep their
// order; blank lines are dropped. An empty fragment leaves existing as is.
func AppendUnique(existing, fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return existing
	}

	var lines []string
	for _, line := range strings.Split(existing, FragmentDelimiter) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == fragment {
			return existing
		}
		lines = append(lines, line)
	}
	return strings.Join(append(lines, fragment), FragmentDelimiter)
}

// AppendRaw appends chunk to the raw_text audit field. There is no dedup.
func AppendRaw(existing, chunk string) string {
	if existing == "" {
		return chunk
	}
	return existing + RawTextDelimiter + chunk
}

var (
	planKeywords   = []string{"plan", "work plan", "today's plan"}
	updateKeywords = []string{"update", "work update", "today's update"}
)

// IsPlan reports whether a block describes planned work. Plan keywords win
// over update keywords; a block with neither counts as an update.
func IsPlan(rawBlock string) bool {
	lower := strings.ToLower(rawBlock)
	for _, kw := range planKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, kw := range updateKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return false
}
