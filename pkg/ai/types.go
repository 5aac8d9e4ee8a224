package ai

import "context"

// Message is one prior turn of a tutoring conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TutorInput contains everything the model needs for one tutoring exchange.
type TutorInput struct {
	Message       string
	History       []Message
	Subject       string
	Difficulty    string
	ResponseStyle string
	Context       string
}

// Usage reports the provider's token accounting for one exchange.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TutorResult is the structured answer returned by the tutor model.
// AppropriatenessScore grades the exchange 0-1 for safety auditing;
// Flagged marks exchanges below the policy floor.
type TutorResult struct {
	Reply                string  `json:"reply"`
	AppropriatenessScore float64 `json:"appropriateness_score"`
	Flagged              bool    `json:"flagged"`
	Usage                Usage   `json:"usage"`
}

// Tutor describes an AI model capable of answering student questions.
type Tutor interface {
	Complete(ctx context.Context, input TutorInput) (TutorResult, error)
	// Ping verifies the provider is reachable with the configured credentials.
	Ping(ctx context.Context) error
}
