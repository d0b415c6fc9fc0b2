package model

import "time"

// ParsingNotesDeterministic marks items produced by the pattern-based parser.
const ParsingNotesDeterministic = "deterministic"

// ClientCandidate is a possible client reference found in an activity description.
type ClientCandidate struct {
	Name       string  `json:"client_name"`
	MatchScore float64 `json:"client_match_score"`
}

// DealCandidate is a possible deal reference found in an activity description.
type DealCandidate struct {
	Name       string  `json:"deal_name"`
	MatchScore float64 `json:"deal_match_score"`
}

// ParsedItem is one activity extracted from a raw block. ItemID is only
// unique within its block.
type ParsedItem struct {
	ItemID           string            `json:"item_id"`
	SourceSender     *string           `json:"source_sender"`
	SourceTimestamp  *time.Time        `json:"source_timestamp"`
	ActivityDate     *Date             `json:"activity_date"`
	StartTime        *string           `json:"start_time"`
	EndTime          *string           `json:"end_time"`
	Description      string            `json:"description"`
	IsClientActivity bool              `json:"is_client_activity"`
	ClientCandidates []ClientCandidate `json:"client_candidates"`
	DealCandidates   []DealCandidate   `json:"deal_candidates"`
	ParsingNotes     *string           `json:"parsing_notes"`
	Confidence       float64           `json:"confidence"`
}

// Sender returns the raw sender token, or "" when absent.
func (p ParsedItem) Sender() string {
	if p.SourceSender == nil {
		return ""
	}
	return *p.SourceSender
}

// Normalize enforces the item invariants: the client-activity flag mirrors
// the candidate list and candidate slices are never nil.
func (p *ParsedItem) Normalize() {
	if p.ClientCandidates == nil {
		p.ClientCandidates = []ClientCandidate{}
	}
	if p.DealCandidates == nil {
		p.DealCandidates = []DealCandidate{}
	}
	p.IsClientActivity = len(p.ClientCandidates) > 0
}

// ParseResult is the block-level output of the extraction pipeline.
type ParseResult struct {
	SourceBlock       string       `json:"source_block"`
	ParsedItems       []ParsedItem `json:"parsed_items"`
	OverallConfidence float64      `json:"overall_confidence"`
}

// EmptyResult returns a result with no items that preserves the raw block.
func EmptyResult(block string) ParseResult {
	return ParseResult{
		SourceBlock: block,
		ParsedItems: []ParsedItem{},
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
