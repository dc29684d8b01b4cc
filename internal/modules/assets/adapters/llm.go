package adapters

import (
	"context"

	"github.com/yungbote/imagerag/internal/platform/openai"
)

// ReasoningLLM answers questions over retrieved captions.
type ReasoningLLM struct {
	client openai.Client
}

func NewReasoningLLM(c openai.Client) *ReasoningLLM { return &ReasoningLLM{client: c} }

func (l *ReasoningLLM) Generate(ctx context.Context, system, user string) (string, error) {
	return l.client.GenerateText(ctx, system, user)
}
