package condition

import (
	"errors"
	"fmt"
)

// ErrMalformed matches any MalformedConditionError.
var ErrMalformed = errors.New("malformed condition")

// MalformedConditionError reports a violated structural invariant, such as a NOT group
// without exactly one child.
type MalformedConditionError struct {
	Operator Operator
	Reason   string
}

func (e *MalformedConditionError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("malformed condition: %s group: %s", e.Operator, e.Reason)
	}
	return fmt.Sprintf("malformed condition: %s", e.Reason)
}

func (e *MalformedConditionError) Is(target error) bool {
	return target == ErrMalformed
}
