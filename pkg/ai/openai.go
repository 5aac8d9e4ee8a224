package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	tutorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sma",
		Subsystem: "ai",
		Name:      "completion_duration_seconds",
		Help:      "Duration of AI tutor completion requests",
	}, []string{"model"})

	tutorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sma",
		Subsystem: "ai",
		Name:      "completion_failures_total",
		Help:      "Number of AI tutor completion failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI tutor.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAITutor implements Tutor against the OpenAI chat completion API.
type OpenAITutor struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAITutor builds a new tutor using the provided configuration.
func NewOpenAITutor(cfg OpenAIConfig) (*OpenAITutor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	tracer := otel.Tracer("github.com/noah-isme/sma-core-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAITutor{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Complete sends the tutoring exchange to OpenAI and parses the response.
func (t *OpenAITutor) Complete(parent context.Context, input TutorInput) (TutorResult, error) {
	ctx, span := t.tracer.Start(parent, "openai.tutor", trace.WithAttributes(
		attribute.String("model", t.cfg.Model),
		attribute.String("subject", input.Subject),
	))
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, len(input.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: tutorSystemPrompt(input),
	})
	for _, turn := range input.History {
		role := openai.ChatMessageRoleUser
		if strings.EqualFold(turn.Role, "assistant") {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input.Message,
	})

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:          t.cfg.Model,
		MaxTokens:      t.cfg.MaxTokens,
		Temperature:    t.cfg.Temperature,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := t.client.CreateChatCompletion(ctx, request)
	tutorDuration.WithLabelValues(t.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		tutorFailures.WithLabelValues(t.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TutorResult{}, fmt.Errorf("openai tutor: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		tutorFailures.WithLabelValues(t.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TutorResult{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseTutorResponse(content)
	if err != nil {
		tutorFailures.WithLabelValues(t.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TutorResult{}, err
	}

	result.Usage = Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	return result, nil
}

// Ping issues a minimal models listing to verify credentials and reachability.
func (t *OpenAITutor) Ping(ctx context.Context) error {
	if _, err := t.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai ping: %w", err)
	}
	return nil
}

func tutorSystemPrompt(input TutorInput) string {
	builder := strings.Builder{}
	builder.WriteString("You are a patient school tutor for K-12 students. ")
	builder.WriteString("Answer only school-appropriate questions and keep explanations age-appropriate. ")
	if input.Subject != "" {
		builder.WriteString("The current subject is ")
		builder.WriteString(input.Subject)
		builder.WriteString(". ")
	}
	if input.Difficulty != "" {
		builder.WriteString("Target difficulty: ")
		builder.WriteString(input.Difficulty)
		builder.WriteString(". ")
	}
	if input.ResponseStyle != "" {
		builder.WriteString("Preferred response style: ")
		builder.WriteString(input.ResponseStyle)
		builder.WriteString(". ")
	}
	if input.Context != "" {
		builder.WriteString("Additional context: ")
		builder.WriteString(input.Context)
		builder.WriteString(" ")
	}
	builder.WriteString("Respond with a JSON object containing reply (string) and ")
	builder.WriteString("appropriateness_score (0-1 grading how school-appropriate the exchange is; ")
	builder.WriteString("score the student's question, not your answer).")
	return builder.String()
}

func parseTutorResponse(content string) (TutorResult, error) {
	type payload struct {
		Reply                string  `json:"reply"`
		AppropriatenessScore float64 `json:"appropriateness_score"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return TutorResult{}, fmt.Errorf("parse tutor json: %w", err)
	}

	if data.AppropriatenessScore < 0 {
		data.AppropriatenessScore = 0
	}
	if data.AppropriatenessScore > 1 {
		data.AppropriatenessScore = 1
	}

	return TutorResult{
		Reply:                data.Reply,
		AppropriatenessScore: data.AppropriatenessScore,
	}, nil
}
