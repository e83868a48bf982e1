package reconcile

import "github.com/sells-group/mentor-sync/internal/model"

// DefaultFundraisingThreshold is the amount at which a mentor is fully funded.
const DefaultFundraisingThreshold = 75.0

// StatusInput carries the three signals the status decision depends on.
type StatusInput struct {
	FullyFunded bool
	IsMember    bool
	HasSetup    bool
}

// FullyFunded reports whether amount meets threshold.
func FullyFunded(amount, threshold float64) bool {
	return amount >= threshold
}

// ComputeStatus maps the signals to exactly one status. The order of the
// cases is the decision priority.
func ComputeStatus(in StatusInput) model.Status {
	switch {
	case in.FullyFunded:
		return model.StatusComplete
	case in.IsMember:
		return model.StatusNeedsFundraising
	case in.HasSetup:
		return model.StatusNeedsPage
	default:
		return model.StatusNeedsSetup
	}
}
