package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Threshold bounds enforced at the storage-read boundary. Administrators
// may set thresholds anywhere in this band; the adaptive learner uses a
// narrower one.
const (
	ThresholdFloor = 0.1
	ThresholdCeil  = 1.0

	TimeoutDurationMin = 60
	TimeoutDurationMax = 86400

	EscalationThresholdMin = 1
	EscalationThresholdMax = 10
)

// Server holds per-guild moderation configuration and feedback aggregates.
// One row per guild, created on first contact and never deleted while the
// guild is active.
type Server struct {
	bun.BaseModel `bun:"table:servers"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	OwnerID   string    `bun:"owner_id,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`

	// Sensitivity thresholds. Only ToxicityThreshold gates the violation
	// decision; the others are stored for category-specific gating that the
	// engine does not apply yet.
	ToxicityThreshold   float64 `bun:"toxicity_threshold,notnull"`
	SpamThreshold       float64 `bun:"spam_threshold,notnull"`
	NSFWThreshold       float64 `bun:"nsfw_threshold,notnull"`
	HarassmentThreshold float64 `bun:"harassment_threshold,notnull"`

	// Enforcement behavior.
	AutoDelete      bool `bun:"auto_delete,notnull"`
	AutoTimeout     bool `bun:"auto_timeout,notnull"`
	TimeoutDuration int  `bun:"timeout_duration,notnull"`

	// Warning ladder flags. EscalationThreshold is stored and validated but
	// the ladder itself runs a fixed 3-strike cycle.
	WarningEnabled      bool `bun:"warning_enabled,notnull"`
	EscalationEnabled   bool `bun:"escalation_enabled,notnull"`
	EscalationThreshold int  `bun:"escalation_threshold,notnull"`

	// Scoping. Empty ModerationChannels means every channel is moderated.
	ModerationChannels []string `bun:"moderation_channels,type:jsonb"`
	ExemptRoles        []string `bun:"exempt_roles,type:jsonb"`

	CustomKeywords      string `bun:"custom_keywords,type:text"`
	ViolationLogChannel string `bun:"violation_log_channel"`
	WelcomeMessage      string `bun:"welcome_message,type:text"`
	LearningEnabled     bool   `bun:"learning_enabled,notnull"`
	PrivacyMode         bool   `bun:"privacy_mode,notnull"`

	// NSFW image handling.
	NSFWAllowed     bool `bun:"nsfw_allowed,notnull"`
	NSFWAutoDelete  bool `bun:"nsfw_auto_delete,notnull"`
	NSFWAutoTimeout bool `bun:"nsfw_auto_timeout,notnull"`
	NSFWAutoBan     bool `bun:"nsfw_auto_ban,notnull"`
	NSFWAutoKick    bool `bun:"nsfw_auto_kick,notnull"`

	// Feedback aggregates, monotonically non-decreasing. Incremented once
	// per reporting event, which may over-count on re-review.
	FalsePositiveCount int `bun:"false_positive_count,notnull"`
	TruePositiveCount  int `bun:"true_positive_count,notnull"`

	TotalMessagesProcessed int64 `bun:"total_messages_processed,notnull"`
}

// NewServer creates a server row with the stock configuration used when a
// guild is first seen.
func NewServer(id, name, ownerID string) *Server {
	now := time.Now()

	return &Server{
		ID:                  id,
		Name:                name,
		OwnerID:             ownerID,
		CreatedAt:           now,
		UpdatedAt:           now,
		ToxicityThreshold:   0.6,
		SpamThreshold:       0.7,
		NSFWThreshold:       0.7,
		HarassmentThreshold: 0.7,
		AutoDelete:          true,
		AutoTimeout:         false,
		TimeoutDuration:     300,
		WarningEnabled:      true,
		EscalationEnabled:   true,
		EscalationThreshold: 3,
		LearningEnabled:     true,
		PrivacyMode:         true,
		NSFWAutoDelete:      true,
	}
}

// ApplyDefaults clamps stored values back into their valid ranges. Config
// writes are validated upstream, but rows written by older versions may
// hold out-of-range values.
func (s *Server) ApplyDefaults() {
	if s.ToxicityThreshold == 0 {
		s.ToxicityThreshold = 0.6
	}

	if s.TimeoutDuration == 0 {
		s.TimeoutDuration = 300
	}

	if s.EscalationThreshold == 0 {
		s.EscalationThreshold = 3
	}

	s.ToxicityThreshold = clampFloat(s.ToxicityThreshold, ThresholdFloor, ThresholdCeil)
	s.SpamThreshold = clampFloat(s.SpamThreshold, ThresholdFloor, ThresholdCeil)
	s.NSFWThreshold = clampFloat(s.NSFWThreshold, ThresholdFloor, ThresholdCeil)
	s.HarassmentThreshold = clampFloat(s.HarassmentThreshold, ThresholdFloor, ThresholdCeil)
	s.TimeoutDuration = clampInt(s.TimeoutDuration, TimeoutDurationMin, TimeoutDurationMax)
	s.EscalationThreshold = clampInt(s.EscalationThreshold, EscalationThresholdMin, EscalationThresholdMax)
}

// ModeratesChannel reports whether the given channel is subject to
// moderation under this configuration.
func (s *Server) ModeratesChannel(channelID string) bool {
	if len(s.ModerationChannels) == 0 {
		return true
	}

	for _, id := range s.ModerationChannels {
		if id == channelID {
			return true
		}
	}

	return false
}

// ExemptsAnyRole reports whether any of the given roles is exempt from
// moderation.
func (s *Server) ExemptsAnyRole(roleIDs []string) bool {
	if len(s.ExemptRoles) == 0 {
		return false
	}

	exempt := make(map[string]struct{}, len(s.ExemptRoles))
	for _, id := range s.ExemptRoles {
		exempt[id] = struct{}{}
	}

	for _, id := range roleIDs {
		if _, ok := exempt[id]; ok {
			return true
		}
	}

	return false
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
