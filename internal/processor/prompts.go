package processor

import (
	"fmt"
	"strings"
)

// buildPrompt composes the provider prompt for one operation. Prompt
// builders are pure functions over the sanitized inputs.
func buildPrompt(op Operation, text, question string, options map[string]any) string {
	var b strings.Builder

	switch op.ID {
	case OpSummarize:
		length := stringOption(options, "length", "concise")
		fmt.Fprintf(&b, "Summarize the following text. Keep the summary %s and factual.\n\n", length)
	case OpSentiment:
		b.WriteString("Analyze the sentiment of the following text. Respond with a single JSON object ")
		b.WriteString(`of the form {"sentiment": "positive"|"negative"|"neutral", "confidence": 0.0-1.0, "explanation": "..."} `)
		b.WriteString("and nothing else.\n\n")
	case OpKeyPoints:
		count := intOption(options, "count", 5)
		fmt.Fprintf(&b, "Extract the %d most important points from the following text. Return one point per line, no numbering.\n\n", count)
	case OpQuestions:
		count := intOption(options, "count", 5)
		fmt.Fprintf(&b, "Generate %d insightful questions about the following text. Return one question per line.\n\n", count)
	case OpQA:
		b.WriteString("Answer the question using only the provided text. If the text does not contain the answer, say so.\n\n")
		fmt.Fprintf(&b, "Question: %s\n\n", question)
	}

	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

func stringOption(options map[string]any, key, fallback string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intOption(options map[string]any, key string, fallback int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case float64:
		// JSON numbers decode as float64.
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return fallback
}
