package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/models"
)

const snippetRunes = 400

var ErrEmptyMessage = errors.New("message must not be empty")

const answerPrompt = `You are a helpful assistant that helps users with their home appliances and furniture by answering questions based on their manuals.

Your approach:
1. UNDERSTAND THE USER'S INTENT - Users may phrase questions informally or use different terminology than the manual. Interpret what they're really asking.

2. USE THE MANUAL AS PRIMARY SOURCE - The context below contains relevant sections from the manual. This is your most reliable information.

3. APPLY COMMON SENSE - Combine manual information with practical knowledge:
   - If the manual explains a feature, you can help troubleshoot related issues
   - If the user describes a problem, connect it to relevant manual sections
   - Use logical reasoning to bridge gaps between what's asked and what's documented

4. BE HELPFUL AND PRACTICAL:
   - Answer in a natural, conversational way
   - Prioritize what the user needs to know to solve their problem
   - If the manual has the exact answer, use it
   - If the manual has related info, adapt it intelligently to the question
   - If the manual is silent, say so, but offer reasonable suggestions based on common sense

5. WHEN INFORMATION IS MISSING:
   - Don't just say "manual doesn't cover this"
   - Offer what you can infer from related sections
   - Suggest reasonable next steps or general best practices
   - Only escalate to "contact manufacturer" if truly necessary

Question: %s

Context from manual:
%s

Provide a helpful, practical answer that solves the user's problem:
`

type ChatService struct {
	db        core.DbClient
	embedder  core.EmbeddingProvider
	llm       core.LLMProvider
	topK      int
	threshold float64
}

func NewChatService(db core.DbClient, embedder core.EmbeddingProvider, llm core.LLMProvider, topK int, threshold float64) *ChatService {
	if topK <= 0 {
		topK = 5
	}
	return &ChatService{db: db, embedder: embedder, llm: llm, topK: topK, threshold: threshold}
}

// Answer retrieves the closest manual chunks for question and asks the
// model to answer from them. deviceID narrows the search before room does.
func (s *ChatService) Answer(ctx context.Context, question, deviceID, room string) (*models.ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyMessage
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vecs))
	}

	filter := models.ChunkFilter{DeviceID: strings.TrimSpace(deviceID), Room: strings.TrimSpace(room)}
	matches, err := s.db.SearchChunks(ctx, vecs[0], filter, s.topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	relevant := matches[:0]
	for _, m := range matches {
		if m.Similarity >= s.threshold {
			relevant = append(relevant, m)
		}
	}
	log.Debug().
		Str("device_id", filter.DeviceID).
		Str("room", filter.Room).
		Int("matches", len(matches)).
		Int("relevant", len(relevant)).
		Msg("chat retrieval")

	texts := make([]string, len(relevant))
	sources := make([]models.ChatSource, len(relevant))
	for i, m := range relevant {
		texts[i] = m.Text
		sources[i] = models.ChatSource{
			DeviceID:   m.DeviceID,
			DeviceName: m.DeviceName,
			Room:       m.Room,
			Brand:      m.Brand,
			Model:      m.Model,
			FileName:   m.FileName,
			Page:       m.Page,
			Snippet:    snippet(m.Text),
		}
	}

	prompt := fmt.Sprintf(answerPrompt, question, strings.Join(texts, "\n\n"))
	answer, err := s.llm.Generate(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &models.ChatAnswer{Answer: strings.TrimSpace(answer), Sources: sources}, nil
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) <= snippetRunes {
		return text
	}
	return string(r[:snippetRunes])
}
