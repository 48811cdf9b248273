package lifecycle

import (
	"fmt"

	"github.com/mulgadc/vmsched/vmsched/directory"
)

// DirectoryQueryError reports a failed instance listing.
type DirectoryQueryError struct {
	Label string
	Err   error
}

func (e *DirectoryQueryError) Error() string {
	return fmt.Sprintf("list instances with label %q: %v", e.Label, e.Err)
}

func (e *DirectoryQueryError) Unwrap() error {
	return e.Err
}

// LifecycleActionError reports a start or stop that failed for one instance,
// either when issued or while waiting on its operation.
type LifecycleActionError struct {
	Action   directory.Action
	Instance string
	Zone     string
	Err      error
}

func (e *LifecycleActionError) Error() string {
	return fmt.Sprintf("%s instance %s in %s: %v", e.Action, e.Instance, e.Zone, e.Err)
}

func (e *LifecycleActionError) Unwrap() error {
	return e.Err
}
