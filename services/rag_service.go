package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"rag-chatbot-platform/internal/ai"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/models"
)

// Generator is the generation backend boundary.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ContextSearcher retrieves ranked chunks for a query within one owner's
// namespace.
type ContextSearcher interface {
	Search(ctx context.Context, userID, query string, k int) []RetrievedContext
}

// Fixed user-facing fallbacks. A generation failure maps to exactly one of
// these sentences, never a stack trace.
const (
	fallbackUnavailable = "I'm sorry, but I'm currently unable to respond. The AI service is not properly configured. Please ensure the Gemini API is set up correctly."
	fallbackRateLimited = "I apologize, but the API rate limit has been exceeded. Please wait a moment and try again."
	fallbackUnknown     = "I apologize, but I encountered an error while processing your request. Please try again."
	fallbackEmptyReply  = "I apologize, but I couldn't generate a response for your question. Please try rephrasing it."

	defaultChatTitle = "New Conversation"
)

const systemInstruction = `You are a helpful AI assistant that answers questions based on the provided context and general knowledge.

INSTRUCTIONS:
1. If relevant context documents are provided, use them to inform your answer
2. Cite specific sources when using information from the context
3. If the context doesn't contain relevant information, use your general knowledge
4. Be helpful, accurate, and concise
5. If you don't know something, say so clearly

`

const noContextLine = "No relevant documents found in your uploads. I'll answer based on my general knowledge.\n\n"

const (
	// HistoryWindow is how many recent turns callers should feed Answer.
	HistoryWindow = 6 // last 3 exchanges

	historyTurnCap = 500 // characters per turn in the prompt
	previewLength  = 200 // characters of chunk preview per source
	titleMaxLength = 100
)

// RAGService turns a query plus retrieved context plus recent conversation
// into a grounded answer with cited sources. A nil generator means the
// backend is not configured; every call then returns the fixed apology.
type RAGService struct {
	generator Generator
	searcher  ContextSearcher
	threshold float64
	topK      int
}

func NewRAGService(generator Generator, searcher ContextSearcher, relevanceThreshold float64, topK int) *RAGService {
	if topK <= 0 {
		topK = 5
	}
	return &RAGService{
		generator: generator,
		searcher:  searcher,
		threshold: relevanceThreshold,
		topK:      topK,
	}
}

// Answer runs the full retrieve-augment-generate flow. It never returns an
// error: every failure past this boundary becomes fallback text so the chat
// turn can still be persisted.
func (rs *RAGService) Answer(ctx context.Context, userID, query string, history []models.ChatTurn) models.ChatAnswer {
	if rs.generator == nil {
		logger.Error("generation backend not configured")
		return models.ChatAnswer{Response: fallbackUnavailable, Sources: []models.Source{}}
	}

	// Retrieval is best-effort; the searcher already degrades to nil on
	// internal failure.
	results := rs.searcher.Search(ctx, userID, query, rs.topK)

	relevant := results[:0:0]
	for _, r := range results {
		if r.RelevanceScore > rs.threshold {
			relevant = append(relevant, r)
		}
	}

	prompt := rs.buildPrompt(query, relevant, history)

	response, err := rs.generator.Complete(ctx, prompt)
	if err != nil {
		logger.Error("generation failed", "user_id", userID, "error", err)
		switch {
		case errors.Is(err, ai.ErrUnavailable):
			return models.ChatAnswer{Response: fallbackUnavailable, Sources: []models.Source{}}
		case ai.IsRateLimitError(err):
			return models.ChatAnswer{Response: fallbackRateLimited, Sources: []models.Source{}}
		default:
			return models.ChatAnswer{Response: fallbackUnknown, Sources: []models.Source{}}
		}
	}
	if strings.TrimSpace(response) == "" {
		response = fallbackEmptyReply
	}

	return models.ChatAnswer{
		Response:    response,
		Sources:     formatSources(relevant),
		UsedContext: len(relevant) > 0,
	}
}

// buildPrompt assembles the system instruction, the context block, the recent
// history window and the literal question.
func (rs *RAGService) buildPrompt(query string, contextDocs []RetrievedContext, history []models.ChatTurn) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n")

	if len(contextDocs) > 0 {
		sb.WriteString("CONTEXT FROM UPLOADED DOCUMENTS:\n")
		sb.WriteString(strings.Repeat("=", 50) + "\n")
		for i, doc := range contextDocs {
			sb.WriteString(fmt.Sprintf("\n[Source %d: %s (Relevance: %.2f)]\n", i+1, doc.Metadata.Filename, doc.RelevanceScore))
			sb.WriteString(doc.Content + "\n")
			sb.WriteString(strings.Repeat("-", 30) + "\n")
		}
		sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	} else {
		sb.WriteString(noContextLine)
	}

	if len(history) > 0 {
		sb.WriteString("RECENT CONVERSATION:\n")
		start := len(history) - HistoryWindow
		if start < 0 {
			start = 0
		}
		for _, turn := range history[start:] {
			label := "Assistant"
			if turn.Role == models.RoleUser {
				label = "User"
			}
			sb.WriteString(fmt.Sprintf("%s: %s\n", label, truncateChars(turn.Content, historyTurnCap)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("USER QUESTION: %s\n\nPlease provide a helpful and accurate response:", query))
	return sb.String()
}

// formatSources deduplicates by filename keeping first occurrence, caps the
// preview and rounds relevance to two decimals.
func formatSources(docs []RetrievedContext) []models.Source {
	sources := []models.Source{}
	seen := make(map[string]bool)
	for _, doc := range docs {
		if seen[doc.Metadata.Filename] {
			continue
		}
		seen[doc.Metadata.Filename] = true

		preview := truncateChars(doc.Content, previewLength)
		sources = append(sources, models.Source{
			Filename:  doc.Metadata.Filename,
			Relevance: math.Round(doc.RelevanceScore*100) / 100,
			Preview:   preview + "...",
		})
	}
	return sources
}

// GenerateTitle asks the backend for a short conversation title based on the
// first message. Any failure falls back to the default title.
func (rs *RAGService) GenerateTitle(ctx context.Context, firstMessage string) string {
	if rs.generator == nil {
		return defaultChatTitle
	}

	prompt := fmt.Sprintf(`Generate a short, descriptive title (5 words max) for a conversation that starts with this message:

"%s"

Respond with only the title, no quotes or punctuation at the end.`, firstMessage)

	title, err := rs.generator.Complete(ctx, prompt)
	if err != nil {
		logger.Error("title generation failed", "error", err)
		return defaultChatTitle
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return defaultChatTitle
	}
	return truncateChars(title, titleMaxLength)
}

// truncateChars caps s at limit characters, never splitting a rune. All the
// prompt and preview limits count characters, not bytes.
func truncateChars(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
