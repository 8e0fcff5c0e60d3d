package calc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fincalc/engine/validation"
)

// ErrRunInProgress rejects a PerformAllCalculations call that overlaps with
// one already running on the same orchestrator.
var ErrRunInProgress = errors.New("a calculation run is already in progress")

// MissingDataError aggregates every required input key that could not be
// collected from storage. The run never proceeds with partial data.
type MissingDataError struct {
	Keys   []string
	Causes map[string]error
}

func (e *MissingDataError) Error() string {
	keys := append([]string(nil), e.Keys...)
	sort.Strings(keys)
	return fmt.Sprintf("missing required input data: %s", strings.Join(keys, ", "))
}

// ValidationFailedError carries the full structured error and warning list
// from a failed validation. The run aborts before any calculator executes.
type ValidationFailedError struct {
	Result *validation.Result
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation against schema %q failed with %d error(s)", e.Result.Schema, len(e.Result.Errors))
}

// CalculatorExecutionError names the calculator whose execution aborted the
// run and wraps its underlying failure.
type CalculatorExecutionError struct {
	Name string
	Err  error
}

func (e *CalculatorExecutionError) Error() string {
	return fmt.Sprintf("calculator %q failed: %v", e.Name, e.Err)
}

func (e *CalculatorExecutionError) Unwrap() error { return e.Err }

// IsMissingData reports whether err is a missing-input failure.
func IsMissingData(err error) bool {
	var me *MissingDataError
	return errors.As(err, &me)
}

// IsValidationFailed reports whether err is a failed validation, and returns
// the result when it is.
func IsValidationFailed(err error) (*validation.Result, bool) {
	var ve *ValidationFailedError
	if errors.As(err, &ve) {
		return ve.Result, true
	}
	return nil, false
}
