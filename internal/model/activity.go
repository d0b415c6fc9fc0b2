package model

import "time"

// ActivityStatusParsed is the status of a record written by the merge engine.
const ActivityStatusParsed = "parsed"

// ParserVersion tags audit entries with the parser that produced them.
const ParserVersion = "v1"

// Parse log statuses.
const (
	ParseLogPending   = "pending"
	ParseLogProcessed = "processed"
)

// Staff is a team member whose chat messages are attributed to activity records.
type Staff struct {
	ID        string     `json:"id" yaml:"-"`
	Code      string     `json:"code" yaml:"code"`
	Name      string     `json:"name" yaml:"name"`
	Aliases   []string   `json:"aliases,omitempty" yaml:"aliases"`
	Email     string     `json:"email,omitempty" yaml:"email"`
	Active    bool       `json:"active" yaml:"-"`
	CreatedAt time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// ActivityRecord is the persisted per-staff, per-day activity log. Text fields
// accumulate newline-delimited fragments across merges.
type ActivityRecord struct {
	ID                 string     `json:"id"`
	StaffID            *string    `json:"staff_id"`
	ActivityDate       *Date      `json:"activity_date"`
	SourceSenderRaw    *string    `json:"source_sender_raw"`
	Description        string     `json:"description"`
	PlannedActivities  *string    `json:"planned_activities"`
	ExecutedActivities *string    `json:"executed_activities"`
	RawText            *string    `json:"raw_text"`
	Confidence         float64    `json:"confidence"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at"`
}

// ParseLog is an append-only audit entry for a parse attempt or applied item.
type ParseLog struct {
	ID            string    `json:"id"`
	RawBlock      string    `json:"raw_block"`
	ParsedResult  string    `json:"parsed_result"`
	ParserVersion string    `json:"parser_version,omitempty"`
	Status        string    `json:"status"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Deref returns *s or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
