package classifier

import (
	"context"
	"strings"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types/enum"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup/config"
	"go.uber.org/zap"
)

// Result holds the outcome of analyzing a piece of content.
type Result struct {
	Flagged       bool
	Categories    map[string]bool
	Scores        map[string]float64
	MaxScore      float64
	ViolationType enum.ViolationType
}

// Classifier analyzes message content for policy violations. It prefers
// the moderation API and falls back to keyword matching when the API is
// unavailable, so analysis itself never fails.
type Classifier struct {
	primary  *OpenAI
	fallback *Keyword
	logger   *zap.Logger
}

// New creates a classifier. Without an API key only the keyword
// fallback is used.
func New(cfg *config.CommonConfig, logger *zap.Logger) *Classifier {
	c := &Classifier{
		fallback: NewKeyword(logger),
		logger:   logger.Named("classifier"),
	}

	if cfg.OpenAI.APIKey != "" {
		c.primary = NewOpenAI(&cfg.OpenAI, &cfg.CircuitBreaker, logger)
	} else {
		c.logger.Warn("No moderation API key configured, using keyword matching only")
	}

	return c
}

// AnalyzeText scores a message for policy violations.
func (c *Classifier) AnalyzeText(ctx context.Context, text string) Result {
	if c.primary != nil {
		result, err := c.primary.AnalyzeText(ctx, text)
		if err == nil {
			return result
		}

		c.logger.Warn("Moderation API failed, falling back to keyword matching", zap.Error(err))
	}

	return c.fallback.AnalyzeText(text)
}

// AnalyzeImage scores an image URL for explicit content. Returns false
// when no image analysis backend is available.
func (c *Classifier) AnalyzeImage(ctx context.Context, imageURL string) (Result, bool) {
	if c.primary == nil {
		return Result{}, false
	}

	result, err := c.primary.AnalyzeImage(ctx, imageURL)
	if err != nil {
		c.logger.Warn("Image moderation failed", zap.Error(err))
		return Result{}, false
	}

	return result, true
}

// primaryViolation maps the highest-scoring flagged category onto the
// violation taxonomy.
func primaryViolation(categories map[string]bool, scores map[string]float64) enum.ViolationType {
	var (
		primary string
		best    float64
	)

	for category, flagged := range categories {
		if !flagged {
			continue
		}

		if score := scores[category]; primary == "" || score > best {
			primary = category
			best = score
		}
	}

	if primary == "" {
		return ""
	}

	switch {
	case strings.Contains(primary, "sexual"):
		return enum.ViolationTypeNSFW
	case strings.Contains(primary, "harassment"), strings.Contains(primary, "hate"):
		return enum.ViolationTypeToxicity
	case strings.Contains(primary, "violence"):
		return enum.ViolationTypeThreats
	case strings.Contains(primary, "self-harm"):
		return enum.ViolationTypeSelfHarm
	default:
		return enum.ViolationType(strings.ReplaceAll(primary, "/", "_"))
	}
}

func maxScore(scores map[string]float64) float64 {
	var best float64
	for _, score := range scores {
		if score > best {
			best = score
		}
	}

	return best
}
