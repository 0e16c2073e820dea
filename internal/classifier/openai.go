package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const defaultRequestTimeout = 10 * time.Second

// OpenAI analyzes content through the moderation endpoint. Requests are
// gated by a semaphore and a circuit breaker so a degraded API cannot
// stall message handling.
type OpenAI struct {
	client    openai.Client
	breaker   *gobreaker.CircuitBreaker
	semaphore *semaphore.Weighted
	model     openai.ModerationModel
	timeout   time.Duration
	logger    *zap.Logger
}

// NewOpenAI creates a moderation API client.
func NewOpenAI(cfg *config.OpenAI, breaker *config.CircuitBreaker, logger *zap.Logger) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Millisecond
	}

	model := openai.ModerationModel(cfg.ModerationModel)
	if model == "" {
		model = openai.ModerationModelOmniModerationLatest
	}

	return &OpenAI{
		client:    openai.NewClient(opts...),
		breaker:   gobreaker.NewCircuitBreaker(breakerSettings(breaker, logger)),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		model:     model,
		timeout:   timeout,
		logger:    logger.Named("openai_classifier"),
	}
}

// breakerSettings builds the circuit breaker settings from config,
// falling back to conservative defaults for unset values.
func breakerSettings(cfg *config.CircuitBreaker, logger *zap.Logger) gobreaker.Settings {
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return gobreaker.Settings{
		Name:        "openai_moderation",
		MaxRequests: maxRequests,
		Timeout:     timeout,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
}

// AnalyzeText runs the moderation endpoint over a message.
func (o *OpenAI) AnalyzeText(ctx context.Context, text string) (Result, error) {
	return o.moderate(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: o.model,
	})
}

// AnalyzeImage runs the moderation endpoint over an image URL.
func (o *OpenAI) AnalyzeImage(ctx context.Context, imageURL string) (Result, error) {
	return o.moderate(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfModerationMultiModalArray: []openai.ModerationMultiModalInputUnionParam{
				{
					OfImageURL: &openai.ModerationImageURLInputParam{
						ImageURL: openai.ModerationImageURLInputImageURLParam{
							URL: imageURL,
						},
					},
				},
			},
		},
		Model: o.model,
	})
}

func (o *OpenAI) moderate(ctx context.Context, params openai.ModerationNewParams) (Result, error) {
	if err := o.semaphore.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer o.semaphore.Release(1)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.breaker.Execute(func() (any, error) {
		return o.client.Moderations.New(ctx, params)
	})
	if err != nil {
		return Result{}, fmt.Errorf("moderation request failed: %w", err)
	}

	resp := raw.(*openai.ModerationNewResponse)
	if len(resp.Results) == 0 {
		return Result{}, fmt.Errorf("moderation response had no results")
	}

	moderation := resp.Results[0]

	categories := map[string]bool{
		"harassment":             moderation.Categories.Harassment,
		"harassment/threatening": moderation.Categories.HarassmentThreatening,
		"hate":                   moderation.Categories.Hate,
		"hate/threatening":       moderation.Categories.HateThreatening,
		"self-harm":              moderation.Categories.SelfHarm,
		"self-harm/instructions": moderation.Categories.SelfHarmInstructions,
		"self-harm/intent":       moderation.Categories.SelfHarmIntent,
		"sexual":                 moderation.Categories.Sexual,
		"sexual/minors":          moderation.Categories.SexualMinors,
		"violence":               moderation.Categories.Violence,
		"violence/graphic":       moderation.Categories.ViolenceGraphic,
	}

	scores := map[string]float64{
		"harassment":             moderation.CategoryScores.Harassment,
		"harassment/threatening": moderation.CategoryScores.HarassmentThreatening,
		"hate":                   moderation.CategoryScores.Hate,
		"hate/threatening":       moderation.CategoryScores.HateThreatening,
		"self-harm":              moderation.CategoryScores.SelfHarm,
		"self-harm/instructions": moderation.CategoryScores.SelfHarmInstructions,
		"self-harm/intent":       moderation.CategoryScores.SelfHarmIntent,
		"sexual":                 moderation.CategoryScores.Sexual,
		"sexual/minors":          moderation.CategoryScores.SexualMinors,
		"violence":               moderation.CategoryScores.Violence,
		"violence/graphic":       moderation.CategoryScores.ViolenceGraphic,
	}

	return Result{
		Flagged:       moderation.Flagged,
		Categories:    categories,
		Scores:        scores,
		MaxScore:      maxScore(scores),
		ViolationType: primaryViolation(categories, scores),
	}, nil
}
