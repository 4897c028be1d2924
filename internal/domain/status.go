package domain

// AdStatus represents the lifecycle status of an ad
type AdStatus string

const (
	AdStatusDraft     AdStatus = "draft"
	AdStatusActive    AdStatus = "active"
	AdStatusPaused    AdStatus = "paused"
	AdStatusExpired   AdStatus = "expired"
	AdStatusCompleted AdStatus = "completed"
)

// StatusTrigger is an event that may move an ad to another status
type StatusTrigger string

const (
	TriggerActivate     StatusTrigger = "activate"
	TriggerPause        StatusTrigger = "pause"
	TriggerResume       StatusTrigger = "resume"
	TriggerWindowPassed StatusTrigger = "window_passed"
	TriggerCapReached   StatusTrigger = "cap_reached"
)

// statusTransitions is the full transition table. The engine only ever
// fires window_passed and cap_reached; activate/pause/resume come from
// the admin console. Expired and completed are terminal.
var statusTransitions = map[AdStatus]map[StatusTrigger]AdStatus{
	AdStatusDraft: {
		TriggerActivate: AdStatusActive,
	},
	AdStatusActive: {
		TriggerPause:        AdStatusPaused,
		TriggerWindowPassed: AdStatusExpired,
		TriggerCapReached:   AdStatusCompleted,
	},
	AdStatusPaused: {
		TriggerResume:       AdStatusActive,
		TriggerWindowPassed: AdStatusExpired,
	},
	AdStatusExpired:   {},
	AdStatusCompleted: {},
}

// NextStatus resolves a status transition. ok is false when the trigger
// does not apply to the current status.
func NextStatus(current AdStatus, trigger StatusTrigger) (AdStatus, bool) {
	next, ok := statusTransitions[current][trigger]
	return next, ok
}

// CanTransition reports whether the trigger applies to the current status
func CanTransition(current AdStatus, trigger StatusTrigger) bool {
	_, ok := statusTransitions[current][trigger]
	return ok
}
