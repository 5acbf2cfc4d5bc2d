package mprompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStackPoolCachesOnNormalReturn exercises spec.md §8's property that the
// per-process stack cache size never decreases after a prompt returns
// normally (modulo the configured cap).
func TestStackPoolCachesOnNormalReturn(t *testing.T) {
	pool := newStackPool(4, true)
	prev := defaultPool
	defaultPool = pool
	defer func() { defaultPool = prev }()

	s := NewSite()
	before := pool.idleCount()
	p := s.Create()
	_, err := s.Enter(p, func(p *Prompt, arg any) any { return arg }, 1)
	require.NoError(t, err)
	after := pool.idleCount()
	assert.GreaterOrEqual(t, after, before)
	assert.Equal(t, 1, after)
}

func TestStackPoolRespectsCacheCap(t *testing.T) {
	pool := newStackPool(1, true)
	prev := defaultPool
	defaultPool = pool
	defer func() { defaultPool = prev }()

	s := NewSite()
	for i := 0; i < 3; i++ {
		p := s.Create()
		_, err := s.Enter(p, func(p *Prompt, arg any) any { return arg }, i)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, pool.idleCount(), 1)
}

// TestCurrentStackID exercises GSTACK's current() contract entry (spec.md
// §4.1): no active prompt reports ok=false, and a prompt's own running body
// sees a non-zero stack id for itself.
func TestCurrentStackID(t *testing.T) {
	s := NewSite()
	_, ok := CurrentStackID(s)
	assert.False(t, ok)

	var sawID uint64
	var sawOK bool
	p := s.Create()
	_, err := s.Enter(p, func(p *Prompt, arg any) any {
		sawID, sawOK = CurrentStackID(p.Site())
		return nil
	}, nil)
	require.NoError(t, err)
	assert.True(t, sawOK)
	assert.Greater(t, sawID, uint64(0))
}

func TestGuardRoundTrips(t *testing.T) {
	initGuard()
	for _, v := range []uint64{0, 1, 42, ^uint64(0)} {
		g := guard(v)
		assert.Equal(t, v, g.unguard())
	}
}
