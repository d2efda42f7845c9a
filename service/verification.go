package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"casecounsel-backend/metrics"
	"casecounsel-backend/models"
)

// section is one of the four fixed answer sections
type section struct {
	Header   string
	synonyms []string
}

// answerSections is the fixed section contract, in output order. Synonyms
// are tried in order, exact matches before substring matches.
var answerSections = []section{
	{Header: "Facts", synonyms: []string{"facts", "fact", "background", "factual_background", "facts_of_the_case", "brief_facts"}},
	{Header: "Held", synonyms: []string{"held", "holding", "holdings", "decision", "outcome", "finding", "findings"}},
	{Header: "Ratio Decidendi", synonyms: []string{"ratio_decidendi", "ratio", "reasoning", "rationale", "legal_reasoning", "principle"}},
	{Header: "Judgment", synonyms: []string{"judgment", "judgement", "final_judgment", "order", "verdict", "disposition", "conclusion"}},
}

const (
	sectionPlaceholder = "_Pending verification: this section could not be confirmed from the primary source._"
	verifiedFooter     = "---\n*Verified: sections re-derived from the primary source text by an independent audit pass.*"
	unverifiedFooter   = "---\n*Verification unavailable: this answer has not been cross-checked against the primary source.*"
)

const verificationSystemPrompt = `You are an appellate auditor. You receive the full text of a judgment and a draft summary of it.
Re-derive each section strictly from the judgment text. Correct anything in the draft that the text does not support.
Do not add holdings, parties or citations that are absent from the text.
Return a single JSON object with the keys "facts", "held", "ratio_decidendi" and "judgment".`

var keyCleaner = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeKey(k string) string {
	return strings.Trim(keyCleaner.ReplaceAllString(strings.ToLower(k), "_"), "_")
}

// VerificationAgent audits a grounded answer against primary text
type VerificationAgent struct {
	common
	gateway Gateway
}

// NewVerificationAgent creates a verification agent
func NewVerificationAgent(gateway Gateway, opts ...Option) *VerificationAgent {
	return &VerificationAgent{common: newCommon(opts), gateway: gateway}
}

// Audit re-derives the four sections of draft from rawText. The output
// always carries all four section headers.
func (v *VerificationAgent) Audit(ctx context.Context, rawText, draft string) string {
	out, err := v.audit(ctx, rawText, draft)
	if err != nil {
		if kind, _ := KindOf(err); kind == KindParse {
			v.logger.Warnf("Warning: Audit output was not JSON, using it as-is: %v", err)
			v.metrics.Stage("verification", metrics.OutcomeDegraded)
			return out
		}
		v.logger.Warnf("Warning: Verification failed, returning unaudited draft: %v", err)
		v.metrics.Stage("verification", metrics.OutcomeDegraded)
		return ensureSectionHeaders(draft) + "\n\n" + unverifiedFooter
	}
	v.metrics.Stage("verification", metrics.OutcomeOK)
	return out
}

// audit returns the audited answer. On a parse error the returned string is
// the raw audit text with headers ensured, marked verified.
func (v *VerificationAgent) audit(ctx context.Context, rawText, draft string) (string, error) {
	raw, err := v.gateway.Invoke(ctx, ModelReasoning, []Message{
		{Role: models.RoleSystem, Content: verificationSystemPrompt},
		{Role: models.RoleUser, Content: fmt.Sprintf("JUDGMENT TEXT:\n%s\n\nDRAFT ANSWER:\n%s", rawText, draft)},
	}, InvokeOptions{Temperature: 0, JSON: true})
	if err != nil {
		return "", stageError("verification", KindTransport, err)
	}

	var obj map[string]interface{}
	if err := parseModelJSON("verification", raw, &obj); err != nil {
		return ensureSectionHeaders(strings.TrimSpace(raw)) + "\n\n" + verifiedFooter, err
	}

	sections, _ := locateSections(obj)
	return renderSections(sections) + "\n\n" + verifiedFooter, nil
}

// lookupSection finds the value for s in obj, skipping keys already used.
// exact selects whole-key matching; otherwise a key containing a synonym
// matches, which covers plurals and prefixed names, as long as no other
// section has a longer synonym inside the same key.
func lookupSection(obj map[string]interface{}, s section, used map[string]bool, exact bool) (string, interface{}, bool) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, syn := range s.synonyms {
		for _, k := range keys {
			if used[k] {
				continue
			}
			norm := normalizeKey(k)
			if norm == syn {
				return k, obj[k], true
			}
			if !exact && strings.Contains(norm, syn) && longestMatch(norm) <= len(syn) {
				return k, obj[k], true
			}
		}
	}
	return "", nil, false
}

// longestMatch is the length of the longest synonym of any section
// contained in norm, so "findings_of_fact" belongs to Held, not Facts.
func longestMatch(norm string) int {
	longest := 0
	for _, s := range answerSections {
		for _, syn := range s.synonyms {
			if len(syn) > longest && strings.Contains(norm, syn) {
				longest = len(syn)
			}
		}
	}
	return longest
}

// locateSections maps section headers to flattened text. When no section
// is found at the top level, nested objects are searched.
func locateSections(obj map[string]interface{}) (map[string]string, bool) {
	found := make(map[string]string)
	matched := make(map[string]bool)
	used := make(map[string]bool)
	for _, exact := range []bool{true, false} {
		for _, s := range answerSections {
			if matched[s.Header] {
				continue
			}
			if k, val, ok := lookupSection(obj, s, used, exact); ok {
				used[k] = true
				matched[s.Header] = true
				if text := flattenValue(val); text != "" {
					found[s.Header] = text
				}
			}
		}
	}
	if len(found) > 0 {
		return found, true
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := obj[k].(map[string]interface{}); ok {
			if inner, ok := locateSections(nested); ok {
				return inner, true
			}
		}
	}
	return found, false
}

// renderSections writes all four sections, using the placeholder for gaps
func renderSections(found map[string]string) string {
	parts := make([]string, 0, len(answerSections))
	for _, s := range answerSections {
		body, ok := found[s.Header]
		if !ok || strings.TrimSpace(body) == "" {
			body = sectionPlaceholder
		}
		parts = append(parts, "### "+s.Header+"\n"+strings.TrimSpace(body))
	}
	return strings.Join(parts, "\n\n")
}

// flattenValue renders strings as-is, lists joined by blank lines and
// objects as "**key**: value" lines, recursively.
func flattenValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := flattenValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n\n")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := flattenValue(val[k]); s != "" {
				parts = append(parts, fmt.Sprintf("**%s**: %s", k, s))
			}
		}
		return strings.Join(parts, "\n")
	case json.Number:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// ensureSectionHeaders appends a placeholder section for every fixed
// header that text lacks
func ensureSectionHeaders(text string) string {
	present := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "### ") {
			present[strings.TrimSpace(strings.TrimPrefix(line, "### "))] = true
		}
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	for _, s := range answerSections {
		if present[s.Header] {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### " + s.Header + "\n" + sectionPlaceholder)
	}
	return b.String()
}
