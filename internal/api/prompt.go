package api

import (
	"fmt"
	"strings"
)

// degradedAnswer is returned when every generation provider fails. Callers
// get a usable message instead of a raw transport error.
const degradedAnswer = "An error occurred while processing your request."

func BuildRAGPrompt(question string, snippets []string) string {
	context := make([]string, 0, len(snippets))
	for i, s := range snippets {
		context = append(context, fmt.Sprintf("Snippet %d: %s", i+1, s))
	}
	return "Based ONLY on the following context from a legal document, please perform the following tasks:\n\n" +
		"CONTEXT:\n---\n" + strings.Join(context, "\n\n") + "\n---\n\n" +
		"USER'S QUESTION: \"" + question + "\"\n\n" +
		"TASKS:\n" +
		"1. Direct Answer: Answer the user's question directly. If the answer isn't in the context, state 'The document does not provide an answer to this question.'\n" +
		"2. Summary: Provide a brief, simple-language summary of the provided context.\n" +
		"3. Key Clauses & Obligations: Identify and list the most important clauses, obligations, or deadlines mentioned.\n" +
		"4. Red Flags & Risks: Point out any potential red flags, risks, penalties, or unusual terms for the user.\n\n" +
		"Cite snippet numbers like [S1] after each factual claim. Format your response clearly using markdown."
}

func BuildSummaryPrompt(snippets []string) string {
	return "Summarize the following contract in simple terms:\n\n" +
		strings.Join(snippets, "\n\n") +
		"\n\nSummary:"
}

// answerConfidence derives a confidence score from the generated text. The
// generator itself reports none, so hedging phrases lower the score.
func answerConfidence(answer string) float64 {
	lowered := strings.ToLower(answer)
	if strings.Contains(lowered, "not stated") ||
		strings.Contains(lowered, "does not contain") ||
		strings.Contains(lowered, "does not provide") {
		return 0.5
	}
	return 0.95
}
