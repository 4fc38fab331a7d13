package classifier

import (
	"strconv"

	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

// rawVerdict mirrors the JSON shape requested in systemPrompt. Fields are
// untyped/loosely typed because the LLM is an untrusted JSON source: any
// shape mismatch must be coerced here, never rejected.
type rawVerdict struct {
	IssueType              any `json:"issue_type"`
	Requirements           any `json:"requirements"`
	AffectedPackages       any `json:"affected_packages"`
	CompletenessScore      any `json:"completeness_score"`
	ClarificationQuestions any `json:"clarification_questions"`
	Confidence             any `json:"confidence"`
	Reasoning              any `json:"reasoning"`
}

var validIssueTypes = map[string]bool{
	"feature": true, "bug": true, "documentation": true, "infrastructure": true, "unknown": true,
}

// normalize turns an untrusted raw verdict into a valid Classification.
// It never errors: any malformed field is coerced to a safe default.
func normalize(raw rawVerdict) *store.Classification {
	issueType := "unknown"
	if s, ok := raw.IssueType.(string); ok && validIssueTypes[s] {
		issueType = s
	}

	requirements := toStringSlice(raw.Requirements)
	affectedPackages := toStringSlice(raw.AffectedPackages)
	clarificationQuestions := toStringSlice(raw.ClarificationQuestions)

	completenessScore := toClampedInt(raw.CompletenessScore, 1, 1, 5)

	var confidence *float64
	if f, ok := toFloat(raw.Confidence); ok {
		clamped := clampFloat(f, 0, 1)
		confidence = &clamped
	}

	var reasoning *string
	if raw.Reasoning != nil {
		s := toString(raw.Reasoning)
		reasoning = &s
	}

	if completenessScore < 3 && len(clarificationQuestions) == 0 {
		clarificationQuestions = fallbackQuestions()
	}

	return &store.Classification{
		IssueType:              issueType,
		Requirements:           requirements,
		AffectedPackages:       affectedPackages,
		CompletenessScore:      completenessScore,
		ClarificationQuestions: clarificationQuestions,
		Confidence:             confidence,
		Reasoning:              reasoning,
	}
}

// fallbackQuestions synthesizes the two generic clarification questions
// used when the verdict calls for clarification but provided none.
func fallbackQuestions() []string {
	return []string{
		"Could you provide more details about the expected behavior?",
		"What is the acceptance criteria for this issue?",
	}
}

// defaultVerdict is returned whenever classification fails entirely
// (network error, invalid JSON, validation failure); the core never
// crashes on classifier failure.
func defaultVerdict(reason string) *store.Classification {
	return &store.Classification{
		IssueType:              "unknown",
		CompletenessScore:      1,
		ClarificationQuestions: fallbackQuestions(),
		Reasoning:              &reason,
	}
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s := toString(item)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func toClampedInt(v any, fallback, min, max int) int {
	n, ok := toInt(v)
	if !ok {
		n = fallback
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func clampFloat(f, min, max float64) float64 {
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}
