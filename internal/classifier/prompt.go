package classifier

import "strings"

const systemPrompt = `You are an expert software development issue classifier. Your task is to analyze GitHub issues and extract structured information.

You MUST respond with valid JSON only. Do not include any text before or after the JSON object.

Analyze the issue and provide:

1. issue_type: one of "feature", "bug", "documentation", "infrastructure", "unknown".
2. requirements: a list of clear, actionable requirement strings extracted from the issue.
3. affected_packages: package/module names likely to need changes.
4. completeness_score: 1-5, where 1 is missing critical information and 5 is comprehensive with examples and acceptance criteria.
5. clarification_questions: if completeness_score < 3, specific questions to ask; otherwise empty.
6. confidence: your confidence in the classification, 0.0 to 1.0.
7. reasoning: a brief explanation of your classification decision.

Respond with this exact JSON structure:
{
  "issue_type": "feature|bug|documentation|infrastructure|unknown",
  "requirements": ["requirement 1", "requirement 2"],
  "affected_packages": ["package1", "package2"],
  "completeness_score": 1-5,
  "clarification_questions": ["question 1", "question 2"],
  "confidence": 0.0-1.0,
  "reasoning": "explanation"
}`

func buildUserPrompt(title, body string, labels []string) string {
	labelsStr := "none"
	if len(labels) > 0 {
		labelsStr = strings.Join(labels, ", ")
	}
	bodyContent := body
	if strings.TrimSpace(bodyContent) == "" {
		bodyContent = "(no description provided)"
	}

	var b strings.Builder
	b.WriteString("Analyze this GitHub issue:\n\n")
	b.WriteString("**Title:** " + title + "\n\n")
	b.WriteString("**Labels:** " + labelsStr + "\n\n")
	b.WriteString("**Description:**\n" + bodyContent + "\n\n")
	b.WriteString("Provide your analysis as JSON.")
	return b.String()
}
