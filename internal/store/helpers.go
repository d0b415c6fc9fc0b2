package store

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/activity-cli/internal/model"
)

// Aliases are stored comma-separated so that a substring search over the
// column matches any single alias.
func joinAliases(aliases []string) string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return strings.Join(out, ",")
}

func splitAliases(col string) []string {
	var out []string
	for _, a := range strings.Split(col, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// prepareActivity fills in the ID, status and timestamps of a new record.
func prepareActivity(rec *model.ActivityRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = model.ActivityStatusParsed
	}
	rec.CreatedAt = now
	rec.UpdatedAt = &now
}

func prepareParseLog(entry *model.ParseLog, now time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ParserVersion == "" {
		entry.ParserVersion = model.ParserVersion
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = now
	}
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
