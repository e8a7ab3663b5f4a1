package quota

import "fmt"

// LimitExceededError reports which window denied an operation and how much
// headroom is left across the plan's finite windows.
type LimitExceededError struct {
	LimitType string
	Remaining int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded (remaining %d)", e.LimitType, e.Remaining)
}
