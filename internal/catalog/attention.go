package catalog

import "time"

// DefaultAttentionIdleThreshold is how long a photo may sit untouched in a
// non-terminal stage before it is flagged. Overridable through configuration.
const DefaultAttentionIdleThreshold = 14 * 24 * time.Hour

// NeedsAttention decides whether a photo should be surfaced to the operator.
// It is a pure function of stage, priority, and time since the last action:
//
//   - anything in INCOMING always needs attention (nobody has looked at it)
//   - excellent-rated photos in any non-terminal stage need attention
//   - any non-terminal photo idle past the threshold needs attention
//   - FINAL and REJECTED photos never do
//
// A non-positive idleThreshold disables the staleness rule.
func NeedsAttention(stage ProcessingStage, priority PriorityLevel, lastAction time.Time, idleThreshold time.Duration, now time.Time) bool {
	if stage.Terminal() {
		return false
	}
	if stage == StageIncoming {
		return true
	}
	if priority == PriorityExcellent {
		return true
	}
	if idleThreshold > 0 && !lastAction.IsZero() && now.Sub(lastAction) >= idleThreshold {
		return true
	}
	return false
}
