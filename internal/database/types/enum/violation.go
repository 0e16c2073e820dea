package enum

import (
	"fmt"
	"strings"
)

// ViolationType identifies the category of content that triggered a violation.
type ViolationType string

const (
	ViolationTypeToxicity  ViolationType = "toxicity"
	ViolationTypeNSFW      ViolationType = "nsfw"
	ViolationTypeSpam      ViolationType = "spam"
	ViolationTypeThreats   ViolationType = "threats"
	ViolationTypeSelfHarm  ViolationType = "self_harm"
	ViolationTypeNSFWImage ViolationType = "nsfw_image"
)

// Display returns a human-readable form of the violation type.
func (t ViolationType) Display() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// Action records what the moderation engine did about a violation.
// Timeout actions carry their duration, so the set is open-ended.
type Action string

const (
	ActionLog          Action = "log"
	ActionWarn1        Action = "warn1"
	ActionWarn2        Action = "warn2"
	ActionWarn3Reset   Action = "warn3_reset"
	ActionDelete       Action = "delete"
	ActionResolved     Action = "resolved"
	ActionNSFWDetected Action = "nsfw_detected"
)

// ActionTimeout builds the action tag for a timeout of the given duration.
func ActionTimeout(seconds int) Action {
	return Action(fmt.Sprintf("timeout_%ds", seconds))
}

// IsActiveWarning reports whether the action counts toward a user's
// active warning total.
func (a Action) IsActiveWarning() bool {
	return a == ActionWarn1 || a == ActionWarn2
}

// Display returns a human-readable form of the action tag.
func (a Action) Display() string {
	return strings.ReplaceAll(string(a), "_", " ")
}
