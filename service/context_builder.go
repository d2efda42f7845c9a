package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"casecounsel-backend/models"
	"casecounsel-backend/repository"
	"casecounsel-backend/textutil"
)

// Context size policy
const (
	MaxContextChars = 40000

	docCharsFull       = 2500
	docCharsSummarized = 500

	researchEntriesFull       = 5
	researchEntriesSummarized = 2
	researchAnswerChars       = 1500

	messagesFull       = 15
	messagesSummarized = 4
	messageChars       = 1000

	truncatedMarker = "\n[... truncated]"
)

// SummaryScheduler accepts background summarization requests.
// Schedule must not block and reports whether a new job was queued.
type SummaryScheduler interface {
	Schedule(caseID, requesterID string) bool
}

// ContextAggregator assembles the bounded text context for a case
type ContextAggregator struct {
	common
	store     repository.CaseStore
	scheduler SummaryScheduler
}

// NewContextAggregator creates an aggregator. scheduler may be nil.
func NewContextAggregator(store repository.CaseStore, scheduler SummaryScheduler, opts ...Option) *ContextAggregator {
	return &ContextAggregator{
		common:    newCommon(opts),
		store:     store,
		scheduler: scheduler,
	}
}

// BuildContext returns the context for caseID. It fails closed: a missing
// case or one owned by someone else yields "" and no error. Only store
// failures are returned.
func (a *ContextAggregator) BuildContext(ctx context.Context, caseID, requesterID string) (string, error) {
	c, err := a.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			return "", nil
		}
		return "", stageError("context", KindTransport, err)
	}
	if !c.OwnedBy(requesterID) {
		return "", nil
	}
	return a.Assemble(c, requesterID), nil
}

// Assemble renders an already authorized case and schedules summarization
// when its raw content is over the ceiling.
func (a *ContextAggregator) Assemble(c *models.Case, requesterID string) string {
	summarized := c.HasSummary()

	docLimit, researchN, messageN := docCharsFull, researchEntriesFull, messagesFull
	if summarized {
		docLimit, researchN, messageN = docCharsSummarized, researchEntriesSummarized, messagesSummarized
	}

	var b strings.Builder
	writeMetadata(&b, c)

	if summarized {
		b.WriteString("\n=== CASE SUMMARY (compressed history) ===\n")
		b.WriteString(strings.TrimSpace(*c.GlobalContextSummary))
		b.WriteString("\n")
	}

	if len(c.Documents) > 0 {
		b.WriteString("\n=== DOCUMENTS ===\n")
		for i, doc := range c.Documents {
			fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, doc.Name, doc.Type)
			if meta := formatMetadata(doc.ForensicMetadata); meta != "" {
				fmt.Fprintf(&b, "Forensic metadata: %s\n", meta)
			}
			if text := strings.TrimSpace(doc.ExtractedText); text != "" {
				b.WriteString(textutil.TruncateWithMarker(text, docLimit, truncatedMarker))
				b.WriteString("\n")
			}
		}
	}

	if research := lastN(c.ResearchHistory, researchN); len(research) > 0 {
		b.WriteString("\n=== RECENT RESEARCH ===\n")
		for _, r := range research {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", r.Query, textutil.TruncateWithMarker(r.Answer, researchAnswerChars, truncatedMarker))
			if len(r.Citations) > 0 {
				fmt.Fprintf(&b, "Authorities: %s\n", citationTitles(r.Citations))
			}
		}
	}

	if messages := lastN(c.Messages, messageN); len(messages) > 0 {
		b.WriteString("\n=== RECENT MESSAGES ===\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, textutil.TruncateWithMarker(m.Content, messageChars, truncatedMarker))
		}
	}

	if raw := RawContentSize(c); raw > MaxContextChars && !a.inCooldown(c) {
		a.logger.Infof("Case %s raw context is %d chars, scheduling summarization", c.ID, raw)
		if a.scheduler != nil {
			a.scheduler.Schedule(c.ID, requesterID)
		}
	}

	out := b.String()
	if textutil.Len(out) > MaxContextChars {
		out = textutil.Truncate(out, MaxContextChars-textutil.Len(truncatedMarker)) + truncatedMarker
	}
	return out
}

// inCooldown reports a summary written less than SummaryCooldown ago.
// The summarizer re-checks this inside its transaction.
func (a *ContextAggregator) inCooldown(c *models.Case) bool {
	return c.LastSummarizedAt != nil && a.now().Sub(*c.LastSummarizedAt) < SummaryCooldown
}

// RawContentSize is the untruncated length of everything the context draws on
func RawContentSize(c *models.Case) int {
	return textutil.Len(FullCaseText(c, 0))
}

// FullCaseText concatenates the whole case without per-item truncation.
// maxChars > 0 caps the result.
func FullCaseText(c *models.Case, maxChars int) string {
	var b strings.Builder
	writeMetadata(&b, c)
	if c.HasSummary() {
		b.WriteString("\n=== PREVIOUS SUMMARY ===\n")
		b.WriteString(*c.GlobalContextSummary)
		b.WriteString("\n")
	}
	for i, doc := range c.Documents {
		fmt.Fprintf(&b, "\n=== DOCUMENT %d: %s (%s) ===\n", i+1, doc.Name, doc.Type)
		if meta := formatMetadata(doc.ForensicMetadata); meta != "" {
			fmt.Fprintf(&b, "Forensic metadata: %s\n", meta)
		}
		b.WriteString(doc.ExtractedText)
		b.WriteString("\n")
	}
	for _, r := range c.ResearchHistory {
		fmt.Fprintf(&b, "\n=== RESEARCH ===\nQ: %s\nA: %s\n", r.Query, r.Answer)
		if len(r.Citations) > 0 {
			fmt.Fprintf(&b, "Authorities: %s\n", citationTitles(r.Citations))
		}
	}
	if len(c.Messages) > 0 {
		b.WriteString("\n=== CONVERSATION ===\n")
		for _, m := range c.Messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	out := b.String()
	if maxChars > 0 {
		out = textutil.Truncate(out, maxChars)
	}
	return out
}

func writeMetadata(b *strings.Builder, c *models.Case) {
	b.WriteString("=== CASE METADATA ===\n")
	fmt.Fprintf(b, "Title: %s\n", c.Title)
	if c.Client != "" {
		fmt.Fprintf(b, "Client: %s\n", c.Client)
	}
	fmt.Fprintf(b, "Status: %s\n", c.Status)
	fmt.Fprintf(b, "Legal Side: %s\n", c.LegalSide)
	if j := c.Jurisdiction.String(); j != "" {
		fmt.Fprintf(b, "Jurisdiction: %s\n", j)
	} else {
		b.WriteString("Jurisdiction: not specified\n")
	}
	if c.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", c.Description)
	}
}

func formatMetadata(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(parts, ", ")
}

func citationTitles(citations []models.Citation) string {
	titles := make([]string, 0, len(citations))
	for _, c := range citations {
		titles = append(titles, c.Title)
	}
	return strings.Join(titles, "; ")
}

func lastN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
