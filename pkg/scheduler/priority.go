package scheduler

const (
	// MinPriority is the most urgent user-facing priority.
	MinPriority = 1
	// MaxPriority is the least urgent user-facing priority.
	MaxPriority = 10
	// DefaultPriority is used when a caller passes 0.
	DefaultPriority = 5
)

// ClampPriority bounds a user priority to [1,10]. Zero means "unset" and
// maps to DefaultPriority.
func ClampPriority(p int) int {
	if p == 0 {
		return DefaultPriority
	}
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// ToSchedulerPriority converts the 1 (highest) to 10 (lowest) user scale to
// the executor's convention where larger numbers run sooner.
func ToSchedulerPriority(userPriority int) int {
	return 20 - ClampPriority(userPriority)
}
