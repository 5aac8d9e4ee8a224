package ai

import (
	"context"
	"fmt"
)

// AnthropicConfig placeholder for anthropic integration configuration.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// AnthropicTutor is a stub implementation that can be expanded once the SDK is available.
type AnthropicTutor struct{}

// NewAnthropicTutor constructs a new stub tutor.
func NewAnthropicTutor(cfg AnthropicConfig) (*AnthropicTutor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	return &AnthropicTutor{}, nil
}

// Complete is not yet implemented for Anthropic models.
func (a *AnthropicTutor) Complete(ctx context.Context, input TutorInput) (TutorResult, error) {
	return TutorResult{}, fmt.Errorf("anthropic tutor not implemented")
}

// Ping is not yet implemented for Anthropic models.
func (a *AnthropicTutor) Ping(ctx context.Context) error {
	return fmt.Errorf("anthropic tutor not implemented")
}
