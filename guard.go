package mprompt

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

// token is a guarded (XOR-obfuscated) value, the Go analogue of
// mp_guard/mp_unguard in the original: a reversible transformation applied to
// the one piece of state ("which epoch of this prompt may legitimately be
// resumed next") that is checked before every control transfer. Go's memory
// safety means there is no raw pointer for a corrupted context buffer to
// misdirect a jump to, so the check here defends against a logic bug (a
// resumption handle used after its prompt moved on) rather than memory
// corruption — the same "only two legitimate transfer points" discipline,
// applied at the granularity Go actually exposes.
type token uint64

var processSecret uint64

// initGuard generates the process-wide secret once. Called from Init/
// ensureInit, matching "process-wide: written at most once after
// initialisation and then read" from spec.md §5.
func initGuard() {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure is effectively unrecoverable on any real
		// platform; fall back to a fixed, still-reversible constant so
		// guard/unguard remain well defined.
		atomic.StoreUint64(&processSecret, 0x9e3779b97f4a7c15)
		return
	}
	atomic.StoreUint64(&processSecret, binary.LittleEndian.Uint64(b[:]))
}

func guard(v uint64) token {
	return token(v ^ atomic.LoadUint64(&processSecret))
}

func (t token) unguard() uint64 {
	return uint64(t) ^ atomic.LoadUint64(&processSecret)
}
