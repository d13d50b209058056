// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package rag

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt instructs the model to answer only from retrieved
// constitutional text.
const DefaultSystemPrompt = `You are NyayaGPT, an AI assistant specialized in answering questions about the Indian Constitution.

Your role:
- Answer questions about the Indian Constitution using the provided context
- Be accurate and cite specific articles, parts, or sections when relevant
- If the context doesn't contain enough information, say so clearly
- Provide clear, helpful explanations in simple language
- Focus on legal accuracy while being accessible

Guidelines:
- Always base your answers on the provided context
- Quote specific articles or sections when available
- If asked about something not in the context, explain that you need more information
- Be respectful and professional in your responses
- Use Indian legal terminology appropriately`

// UserPrompt embeds the retrieved context and the question.
func UserPrompt(context, question string) string {
	return "Context about the Indian Constitution:\n" + context +
		"\n\nQuestion: " + question +
		"\n\nPlease provide a comprehensive answer based on the context above. " +
		"If you reference specific articles, parts, or sections, please mention them clearly."
}

// FormatSource renders one numbered context block.
func FormatSource(rank int, relevance float64, text string) string {
	return fmt.Sprintf("Source %d (Relevance: %.2f):\n%s\n", rank, relevance, text)
}

func formatContext(sources []Source) string {
	blocks := make([]string, len(sources))
	for i, s := range sources {
		blocks[i] = FormatSource(s.Rank, s.Relevance, s.Text)
	}
	return strings.Join(blocks, "\n")
}
