package mprompt

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Handler receives a diagnostic line from the runtime; it backs both
// Config.OutputHandler (informational) and Config.ErrorHandler (warnings and
// fatal conditions).
type Handler func(format string, args ...any)

// Config mirrors the configuration options enumerated in spec.md §6.
type Config struct {
	// StackTotalBytes is the reserved size applied process-wide via
	// debug.SetMaxStack, the closest stdlib analogue of a fixed per-stack
	// reservation (Go has no per-goroutine stack cap).
	StackTotalBytes int
	// StackInitialCommitBytes is recorded for diagnostics; Go's runtime
	// grows goroutine stacks on demand regardless of this value.
	StackInitialCommitBytes int
	// StackGapBytes is recorded for diagnostics only (there is no guard
	// page concept for a goroutine stack).
	StackGapBytes int
	// StackCacheCount bounds the number of idle pooled worker goroutines
	// kept warm per stackPool.
	StackCacheCount int
	// StackUseOvercommit is recorded for diagnostics; Go's stack growth is
	// always on-demand so this has no runtime effect.
	StackUseOvercommit bool
	// GPoolEnable toggles whether stackPool actually retains idle workers
	// (false forces every alloc to spawn a fresh goroutine, useful for
	// diagnosing a suspected pool-reuse bug).
	GPoolEnable bool
	// OutputHandler receives informational diagnostics.
	OutputHandler Handler
	// ErrorHandler receives warnings and fatal diagnostics before any
	// associated abort.
	ErrorHandler Handler
}

func defaultHandlerOutput(format string, args ...any) {
	logrus.Infof(format, args...)
}

func defaultHandlerError(format string, args ...any) {
	logrus.Errorf(format, args...)
}

// DefaultConfig returns the configuration mprompt uses when Init is never
// called explicitly.
func DefaultConfig() Config {
	page := unix.Getpagesize()
	return Config{
		StackTotalBytes:         8 << 20,
		StackInitialCommitBytes: page,
		StackGapBytes:           page,
		StackCacheCount:         32,
		StackUseOvercommit:      true,
		GPoolEnable:             true,
		OutputHandler:           defaultHandlerOutput,
		ErrorHandler:            defaultHandlerError,
	}
}

var (
	initOnce     sync.Once
	activeConfig Config
)

// Init performs process-wide initialisation. It is idempotent per process:
// the first call wins and later calls are no-ops, matching spec.md's
// "Idempotent per process" contract. NewSite, Run, Site.Create and
// ClearStackCache initialise mprompt with DefaultConfig when Init has not
// run yet, and an Init call made after that is a no-op as well.
func Init(cfg Config) {
	initOnce.Do(func() {
		activeConfig = cfg
		if activeConfig.OutputHandler == nil {
			activeConfig.OutputHandler = defaultHandlerOutput
		}
		if activeConfig.ErrorHandler == nil {
			activeConfig.ErrorHandler = defaultHandlerError
		}
		if activeConfig.StackCacheCount <= 0 {
			activeConfig.StackCacheCount = 1
		}
		initGuard()
		if activeConfig.StackTotalBytes > 0 {
			debug.SetMaxStack(activeConfig.StackTotalBytes)
		}
		defaultPool = newStackPool(activeConfig.StackCacheCount, activeConfig.GPoolEnable)
	})
}

func ensureInit() {
	initOnce.Do(func() {
		cfg := DefaultConfig()
		activeConfig = cfg
		initGuard()
		if activeConfig.StackTotalBytes > 0 {
			debug.SetMaxStack(activeConfig.StackTotalBytes)
		}
		defaultPool = newStackPool(activeConfig.StackCacheCount, activeConfig.GPoolEnable)
	})
}

func outputf(format string, args ...any) {
	if activeConfig.OutputHandler != nil {
		activeConfig.OutputHandler(format, args...)
	}
}

func errorf(format string, args ...any) {
	if activeConfig.ErrorHandler != nil {
		activeConfig.ErrorHandler(format, args...)
	}
}
