package mprompt

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Kind classifies a diagnostic per spec.md §7.
type Kind int

const (
	// KindIntegrity covers jump/guard mismatches and invariant violations
	// detected in debug assertions. Fatal: the process aborts.
	KindIntegrity Kind = iota
	// KindAllocation covers stack allocation failure. Fatal by default.
	KindAllocation
	// KindUsage covers recoverable misuse: resume_dup on a once-resumption,
	// yielding to a non-ancestor, double-entry. Surfaced to the caller.
	KindUsage
	// KindPropagatedException tags a panic value carried across a prompt
	// boundary; it is re-raised verbatim on the parent's goroutine and is
	// never itself logged or aborted on.
	KindPropagatedException
)

func (k Kind) String() string {
	switch k {
	case KindIntegrity:
		return "integrity"
	case KindAllocation:
		return "allocation"
	case KindUsage:
		return "usage"
	case KindPropagatedException:
		return "propagated-exception"
	default:
		return "unknown"
	}
}

// Error is returned for recoverable (KindUsage) failures and wraps the
// offending call with a stack trace via github.com/pkg/errors, matching how
// moby-moby's internal packages annotate driver-level failures.
type Error struct {
	Kind Kind
	Op   string
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mprompt: %s: %s: %v", e.Kind, e.Op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func usageError(op, format string, args ...any) *Error {
	err := &Error{Kind: KindUsage, Op: op, err: errors.Errorf(format, args...)}
	errorf("mprompt usage error in %s: %v", op, err.err)
	return err
}

// fatalIntegrity logs through the error handler and aborts the process. No
// usage error ever flows from here — integrity violations never propagate,
// per spec.md §7.
func fatalIntegrity(op, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	errorf("mprompt integrity violation in %s: %s", op, msg)
	os.Exit(70) // EX_SOFTWARE
}

// fatalAllocation logs through the error handler and aborts the process by
// default; a host may install an Config.ErrorHandler that panics or performs
// its own unwind instead, in which case control never reaches the os.Exit
// below.
func fatalAllocation(op string, err error) {
	errorf("mprompt allocation failure in %s: %v", op, err)
	os.Exit(71) // EX_OSERR
}
