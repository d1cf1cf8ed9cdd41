package lifecycle

import "fmt"

const (
	ReasonParentInactive     = "parent inactive"
	ReasonDependencyInactive = "dependency inactive"
)

// RestoreBlockedError names the ancestor or dependency that has to be
// restored before the requested record can be.
type RestoreBlockedError struct {
	Reason  string
	RefType string
	RefID   string
	Missing bool
}

func (e *RestoreBlockedError) Error() string {
	state := "inactive"
	if e.Missing {
		state = "missing"
	}
	return fmt.Sprintf("restore blocked: %s (%s %s is %s)", e.Reason, e.RefType, e.RefID, state)
}

// DepthExceededError rejects a reply nested deeper than MaxDepth.
type DepthExceededError struct {
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("thread depth exceeded: max %d levels", e.MaxDepth)
}
