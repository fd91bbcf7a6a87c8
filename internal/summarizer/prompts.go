package summarizer

import (
	"fmt"

	"docchat/internal/ai"
	"docchat/internal/chunker"
)

const (
	chunkInstructions = "You summarize one section of a longer document. Keep the key facts, names, numbers and conclusions. " +
		"Write plain prose without preamble."
	combineInstructions = "You merge two consecutive partial summaries of the same document into one shorter summary. " +
		"Keep their order and every key fact. Write plain prose without preamble."
	finalInstructions = "You write the overall summary of a document from its section summaries, which are given in document order. " +
		"Cover the main topics and conclusions. Write plain prose without preamble."
)

func chunkPrompt(c chunker.Chunk, total int) []ai.ChatMessage {
	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: chunkInstructions},
		{Role: ai.RoleUser, Content: fmt.Sprintf("Section %d of %d:\n\n%s", c.Index+1, total, c.Text)},
	}
}

func combinePrompt(first, second string) []ai.ChatMessage {
	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: combineInstructions},
		{Role: ai.RoleUser, Content: "First part:\n" + first + "\n\nSecond part:\n" + second},
	}
}

func finalPrompt(joined string) []ai.ChatMessage {
	return []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: finalInstructions},
		{Role: ai.RoleUser, Content: "Section summaries:\n\n" + joined},
	}
}
