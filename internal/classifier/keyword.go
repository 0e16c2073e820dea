package classifier

import (
	"strings"

	"go.uber.org/zap"
)

// baselineScore is assigned to categories with no keyword match so the
// score map stays shaped like the moderation API's output.
const baselineScore = 0.02

// Keyword is a deterministic classifier that matches known bad
// substrings. It backs up the moderation API and carries the test
// environment.
type Keyword struct {
	toxic      []string
	nsfw       []string
	harassment []string
	threats    []string
	selfHarm   []string
	logger     *zap.Logger
}

// NewKeyword creates the keyword classifier with its built-in lists.
func NewKeyword(logger *zap.Logger) *Keyword {
	return &Keyword{
		toxic:      []string{"hate", "kill", "stupid", "idiot", "fuck", "shit", "damn", "asshole", "bitch"},
		nsfw:       []string{"sex", "nude", "naked", "porn", "sexy", "hot"},
		harassment: []string{"loser", "ugly", "worthless", "pathetic"},
		threats:    []string{"kill you", "hurt you", "destroy", "attack"},
		selfHarm:   []string{"suicide", "kill myself", "end my life", "want to die"},
		logger:     logger.Named("keyword_classifier"),
	}
}

// AnalyzeText scores the text by substring matching.
func (k *Keyword) AnalyzeText(text string) Result {
	lower := strings.ToLower(text)

	hasToxic := containsAny(lower, k.toxic)
	hasNSFW := containsAny(lower, k.nsfw)
	hasHarassment := containsAny(lower, k.harassment)
	hasThreats := containsAny(lower, k.threats)
	hasSelfHarm := containsAny(lower, k.selfHarm)

	scores := map[string]float64{
		"harassment":              scoreFor(hasHarassment, 0.8),
		"harassment/threatening":  scoreFor(hasThreats, 0.7),
		"hate":                    scoreFor(hasToxic, 0.9),
		"hate/threatening":        scoreFor(hasToxic && hasThreats, 0.6),
		"self-harm":               scoreFor(hasSelfHarm, 0.9),
		"self-harm/instructions":  baselineScore,
		"self-harm/intent":        scoreFor(hasSelfHarm, 0.8),
		"sexual":                  scoreFor(hasNSFW, 0.85),
		"sexual/minors":           baselineScore,
		"violence":                scoreFor(hasThreats, 0.75),
		"violence/graphic":        baselineScore,
	}

	categories := make(map[string]bool, len(scores))
	for category, score := range scores {
		categories[category] = score > 0.5
	}

	result := Result{
		Flagged:       hasToxic || hasNSFW || hasHarassment || hasThreats || hasSelfHarm,
		Categories:    categories,
		Scores:        scores,
		MaxScore:      maxScore(scores),
		ViolationType: primaryViolation(categories, scores),
	}

	if result.Flagged {
		k.logger.Debug("Keyword match",
			zap.String("type", string(result.ViolationType)),
			zap.Float64("maxScore", result.MaxScore))
	}

	return result
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}

	return false
}

func scoreFor(matched bool, score float64) float64 {
	if matched {
		return score
	}

	return baselineScore
}
