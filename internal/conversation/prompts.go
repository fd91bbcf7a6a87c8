package conversation

import (
	"strings"

	"docchat/internal/ai"
	"docchat/internal/retrieval"
)

const systemInstructions = "You answer questions about one document. Use the document summary, " +
	"the document text or excerpts, and the earlier conversation. If they do not contain the answer, " +
	"say so plainly instead of guessing. Answer in the language of the question."

// promptOverhead covers the headings wrapped around context and question.
const promptOverhead = 16

func buildPrompt(assembled *retrieval.Assembled, history *Window, question string) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, 3+2*history.Len())
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: systemInstructions})
	if assembled.Summary != "" {
		messages = append(messages, ai.ChatMessage{
			Role:    ai.RoleSystem,
			Content: "Document summary:\n" + assembled.Summary,
		})
	}
	messages = append(messages, history.Messages()...)

	var sb strings.Builder
	if assembled.Body != "" {
		if assembled.FullText {
			sb.WriteString("Document text:\n")
		} else {
			sb.WriteString("Relevant excerpts:\n")
		}
		sb.WriteString(assembled.Body)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: sb.String()})
	return messages
}
