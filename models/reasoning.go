package models

import "strings"

// Citation is a reference to an authority used in an answer
type Citation struct {
	Title       string `json:"title"`
	CitationRef string `json:"citation_ref,omitempty"`
	Court       string `json:"court,omitempty"`
	URL         string `json:"url,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
}

// GroundingResult is a researched answer with the authorities behind it
type GroundingResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// SufficiencyStatus is the gatekeeper decision
type SufficiencyStatus string

const (
	StatusSufficient SufficiencyStatus = "SUFFICIENT"
	StatusNeedsInfo  SufficiencyStatus = "NEEDS_INFO"
)

// SufficiencyVerdict decides whether a request can proceed to full reasoning
type SufficiencyVerdict struct {
	Status              SufficiencyStatus `json:"status"`
	MissingFields       []string          `json:"missing_fields,omitempty"`
	ClarificationPrompt string            `json:"clarification_prompt,omitempty"`
	SufficiencyScore    float64           `json:"sufficiency_score"`
}

// SufficientVerdict is the fail-open verdict
func SufficientVerdict() SufficiencyVerdict {
	return SufficiencyVerdict{Status: StatusSufficient, SufficiencyScore: 100}
}

// ReasoningResult is the assistant turn returned to the caller
type ReasoningResult struct {
	Content   string           `json:"content"`
	Role      string           `json:"role"`
	Citations []Citation       `json:"citations,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MergeCitations concatenates citation lists and drops repeated titles.
// The first occurrence of a title wins and order is preserved.
func MergeCitations(lists ...[]Citation) []Citation {
	merged := make([]Citation, 0)
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, c := range list {
			title := strings.TrimSpace(c.Title)
			if title == "" || seen[title] {
				continue
			}
			seen[title] = true
			c.Title = title
			merged = append(merged, c)
		}
	}
	return merged
}
