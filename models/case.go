package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// CaseStatus represents the status of a case workspace
type CaseStatus string

const (
	CaseStatusOpen     CaseStatus = "open"
	CaseStatusActive   CaseStatus = "active"
	CaseStatusClosed   CaseStatus = "closed"
	CaseStatusArchived CaseStatus = "archived"
)

// LegalSide selects the strategic directive injected into reasoning prompts
type LegalSide string

const (
	LegalSideProsecution LegalSide = "PROSECUTION"
	LegalSideDefense     LegalSide = "DEFENSE"
	LegalSideCorporate   LegalSide = "CORPORATE"
	LegalSideFinancial   LegalSide = "FINANCIAL"
	LegalSideCivil       LegalSide = "CIVIL"
	LegalSideGeneral     LegalSide = "GENERAL"
)

// LegalSides lists every legal side in a stable order
var LegalSides = []LegalSide{
	LegalSideProsecution,
	LegalSideDefense,
	LegalSideCorporate,
	LegalSideFinancial,
	LegalSideCivil,
	LegalSideGeneral,
}

// Valid reports whether s is one of the known legal sides
func (s LegalSide) Valid() bool {
	for _, side := range LegalSides {
		if s == side {
			return true
		}
	}
	return false
}

// ParseLegalSide normalizes user input into a LegalSide.
// Unknown or empty values map to LegalSideGeneral.
func ParseLegalSide(raw string) LegalSide {
	side := LegalSide(strings.ToUpper(strings.TrimSpace(raw)))
	if side == "DEFENCE" {
		return LegalSideDefense
	}
	if side.Valid() {
		return side
	}
	return LegalSideGeneral
}

// Jurisdiction identifies where a matter is being litigated or drafted
type Jurisdiction struct {
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	Court   string `json:"court,omitempty"`
}

// IsZero reports whether no jurisdiction field is set
func (j *Jurisdiction) IsZero() bool {
	return j == nil || (j.Country == "" && j.State == "" && j.Court == "")
}

// String renders the jurisdiction for prompts
func (j *Jurisdiction) String() string {
	if j.IsZero() {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{j.Court, j.State, j.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Value implements driver.Valuer for JSONB
func (j Jurisdiction) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JSONB
func (j *Jurisdiction) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// CaseDocument is an uploaded document folded into case context
type CaseDocument struct {
	ID               string                 `json:"id"`
	FileID           string                 `json:"file_id,omitempty"`
	Name             string                 `json:"name"`
	Type             string                 `json:"type"`
	ExtractedText    string                 `json:"extracted_text,omitempty"`
	ForensicMetadata map[string]interface{} `json:"forensic_metadata,omitempty"`
	UploadedAt       time.Time              `json:"uploaded_at"`
}

// CaseDocuments represents the documents attached to a case
type CaseDocuments []CaseDocument

// Value implements driver.Valuer for JSONB
func (d CaseDocuments) Value() (driver.Value, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB
func (d *CaseDocuments) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*d = make(CaseDocuments, 0)
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// ResearchEntry is one persisted grounding run
type ResearchEntry struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	CreatedAt time.Time  `json:"created_at"`
}

// ResearchHistory represents the append-only research log of a case
type ResearchHistory []ResearchEntry

// Value implements driver.Valuer for JSONB
func (r ResearchHistory) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB
func (r *ResearchHistory) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*r = make(ResearchHistory, 0)
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// Chat message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MessageMetadata carries gatekeeper state on an assistant turn
type MessageMetadata struct {
	Status        SufficiencyStatus `json:"status,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`
}

// ChatMessage is one persisted chat turn
type ChatMessage struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id,omitempty"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Citations []Citation       `json:"citations,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// ChatMessages represents the append-only chat log of a case
type ChatMessages []ChatMessage

// Value implements driver.Valuer for JSONB
func (m ChatMessages) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB
func (m *ChatMessages) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*m = make(ChatMessages, 0)
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Case represents a case workspace
type Case struct {
	ID           string        `json:"id"`
	CreatorUID   string        `json:"creator_uid"`
	Title        string        `json:"title"`
	Client       string        `json:"client"`
	Status       CaseStatus    `json:"status"`
	LegalSide    LegalSide     `json:"legal_side"`
	Description  string        `json:"description"`
	Jurisdiction *Jurisdiction `json:"jurisdiction,omitempty"`

	Documents       CaseDocuments   `json:"documents"`
	ResearchHistory ResearchHistory `json:"research_history"`
	Messages        ChatMessages    `json:"messages"`

	// Compressed history, regenerated at most once per cooldown window
	GlobalContextSummary *string    `json:"global_context_summary,omitempty"`
	LastSummarizedAt     *time.Time `json:"last_summarized_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether uid created the case
func (c *Case) OwnedBy(uid string) bool {
	return c != nil && uid != "" && c.CreatorUID == uid
}

// HasSummary reports whether a non-empty context summary exists
func (c *Case) HasSummary() bool {
	return c.GlobalContextSummary != nil && strings.TrimSpace(*c.GlobalContextSummary) != ""
}

// Clone returns a copy whose slices can be appended to without aliasing c
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	if c.Jurisdiction != nil {
		j := *c.Jurisdiction
		out.Jurisdiction = &j
	}
	out.Documents = append(CaseDocuments(nil), c.Documents...)
	out.ResearchHistory = append(ResearchHistory(nil), c.ResearchHistory...)
	out.Messages = append(ChatMessages(nil), c.Messages...)
	if c.GlobalContextSummary != nil {
		s := *c.GlobalContextSummary
		out.GlobalContextSummary = &s
	}
	if c.LastSummarizedAt != nil {
		t := *c.LastSummarizedAt
		out.LastSummarizedAt = &t
	}
	return &out
}

// jsonBytes handles the different types pgx might return for JSONB
func jsonBytes(value interface{}) ([]byte, bool) {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil, false
	}
	if len(bytes) == 0 {
		return nil, false
	}
	return bytes, true
}
