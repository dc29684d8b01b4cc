package steps

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

const noImagesAnswer = "I don't have any retrieved images to reason about yet. Please run a search first, then ask your question again."

const defaultAskTopK = 3

type AskDeps struct {
	Log      *logger.Logger
	LLM      LLM
	Retrieve RetrieveDeps
}

type AskInput struct {
	Question string
	// Query drives retrieval; the question is used when empty.
	Query string
	TopK  int
	// Matches skips retrieval when the caller already holds results.
	Matches []types.QueryMatch
}

type AskOutput struct {
	Answer  string             `json:"answer"`
	Matches []types.QueryMatch `json:"matches"`
}

// Ask answers a question grounded only in the captions of retrieved images.
func Ask(ctx context.Context, deps AskDeps, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, types.InvalidArgument("ask", "question is required")
	}
	if deps.LLM == nil {
		return AskOutput{}, fmt.Errorf("ask: missing llm")
	}

	matches := in.Matches
	if matches == nil {
		query := strings.TrimSpace(in.Query)
		if query == "" {
			query = question
		}
		topK := in.TopK
		if topK == 0 {
			topK = defaultAskTopK
		}
		res, err := Retrieve(ctx, deps.Retrieve, RetrieveInput{Query: query, TopK: topK})
		if err != nil {
			return AskOutput{}, err
		}
		matches = res.Matches
	}
	if len(matches) == 0 {
		return AskOutput{Answer: noImagesAnswer, Matches: []types.QueryMatch{}}, nil
	}

	answer, err := deps.LLM.Generate(ctx, reasoningSystemPrompt(matches), question)
	if err != nil {
		return AskOutput{}, fmt.Errorf("reasoning model: %w", err)
	}
	return AskOutput{Answer: strings.TrimSpace(answer), Matches: matches}, nil
}

func retrievedContext(matches []types.QueryMatch) string {
	var b strings.Builder
	b.WriteString("Retrieved Image Context:\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "- Image %d: %s\n", i+1, m.Caption)
	}
	return b.String()
}

func reasoningSystemPrompt(matches []types.QueryMatch) string {
	return "You are an expert digital asset assistant.\n\n" +
		retrievedContext(matches) + "\n" +
		"Rules:\n" +
		"1. Answer based ONLY on the provided context of retrieved images.\n" +
		"2. If no images are retrieved, politely ask the user to perform a search first.\n" +
		"3. Be professional and concise."
}
