package parse

import (
	"regexp"
	"strings"

	"github.com/sells-group/activity-cli/internal/model"
)

// MentionScore is the fixed match score assigned to every extracted mention.
const MentionScore = 0.90

// A mention is "@" with an optional "~", then either a name wrapped in
// Unicode isolates (as chat clients export them) or a word run that extends
// over following capitalized words ("@~Acme Corp about PO" names "Acme Corp").
var mentionRe = regexp.MustCompile(`@(?:\x{2068}~?([^\x{2069}\n]+)\x{2069}|~?([\w\-]+(?: [A-Z][\w\-]*)*))`)

// ExtractMentions returns a client candidate for every mention in text, in
// order of appearance. Duplicates are kept.
func ExtractMentions(text string) []model.ClientCandidate {
	out := []model.ClientCandidate{}
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "~"))
		if name == "" {
			continue
		}
		out = append(out, model.ClientCandidate{Name: name, MatchScore: MentionScore})
	}
	return out
}
