package runner

import (
	"errors"
	"fmt"
)

// ErrTaskFailed matches every error produced by a failed task action.
var ErrTaskFailed = errors.New("task failed")

// TaskError reports which task failed and why.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTaskFailed) hold for any TaskError.
func (e *TaskError) Is(target error) bool { return target == ErrTaskFailed }

// FailedTasks returns the names of the tasks in err, in order.
func FailedTasks(err error) []string {
	var names []string
	var visit func(error)
	visit = func(err error) {
		var te *TaskError
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				visit(e)
			}
			return
		}
		if errors.As(err, &te) {
			names = append(names, te.Task)
		}
	}
	if err != nil {
		visit(err)
	}
	return names
}
