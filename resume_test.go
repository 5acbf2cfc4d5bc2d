package mprompt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mprompt-go/mprompt"
)

// TestMultiShotResumeIndependentBranches exercises spec.md §8's multi-shot
// counter scenario: the same resumption, converted to multi, is resumed
// twice with different arguments and each call sees an independent
// continuation of the suspended computation.
func TestMultiShotResumeIndependentBranches(t *testing.T) {
	var captured mprompt.Resumption

	first, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		base := arg.(int)
		v := mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			captured = mprompt.ResumeMulti(r)
			return "unused"
		}, nil)
		return base + v.(int)
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, "unused", first)
	require.NotNil(t, captured)

	branchA, err := mprompt.Resume(captured, 1)
	require.NoError(t, err)
	assert.Equal(t, 11, branchA)

	branchB, err := mprompt.Resume(captured, 2)
	require.NoError(t, err)
	assert.Equal(t, 12, branchB)

	assert.EqualValues(t, 2, mprompt.ResumeCount(captured))
}

// TestMultiShotResumeReplaysPriorYields verifies a continuation suspended
// behind two yields can be branched after the second yield and that each
// branch still observes the first yield's recorded argument identically.
func TestMultiShotResumeReplaysPriorYields(t *testing.T) {
	var secondYield mprompt.Resumption

	_, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		a := mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			rv, err := mprompt.Resume(r, 100)
			require.NoError(t, err)
			return rv
		}, nil).(int)

		b := mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			secondYield = mprompt.ResumeMulti(r)
			return a + 0
		}, nil).(int)

		return a + b
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, secondYield)

	r1, err := mprompt.Resume(secondYield, 5)
	require.NoError(t, err)
	assert.Equal(t, 105, r1)

	r2, err := mprompt.Resume(secondYield, 7)
	require.NoError(t, err)
	assert.Equal(t, 107, r2)
}

func TestOnceResumptionCannotBeUsedTwice(t *testing.T) {
	var captured mprompt.Resumption
	_, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		return mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			captured = r
			return nil
		}, nil)
	}, nil)
	require.NoError(t, err)

	_, err = mprompt.Resume(captured, 1)
	require.NoError(t, err)

	_, err = mprompt.Resume(captured, 2)
	require.Error(t, err)
}

func TestResumeDupRejectsOnceResumption(t *testing.T) {
	var captured mprompt.Resumption
	_, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		return mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			captured = r
			return nil
		}, nil)
	}, nil)
	require.NoError(t, err)

	_, err = mprompt.ResumeDup(captured)
	assert.Error(t, err)

	// clean up: consume the handle so the test doesn't leak a goroutine.
	_, _ = mprompt.Resume(captured, nil)
}

func TestResumeDupSharesMultiResumption(t *testing.T) {
	var captured mprompt.Resumption
	_, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		return mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			captured = mprompt.ResumeMulti(r)
			return nil
		}, nil)
	}, nil)
	require.NoError(t, err)

	dup, err := mprompt.ResumeDup(captured)
	require.NoError(t, err)

	_, err = mprompt.Resume(captured, 1)
	require.NoError(t, err)
	_, err = mprompt.Resume(dup, 2)
	require.NoError(t, err)

	assert.EqualValues(t, 2, mprompt.ResumeCount(captured))
}

func TestResumeShouldUnwindOnceResumption(t *testing.T) {
	var captured mprompt.Resumption
	_, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		return mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			captured = r
			return nil
		}, nil)
	}, nil)
	require.NoError(t, err)

	assert.True(t, mprompt.ResumeShouldUnwind(captured))
	mprompt.ResumeDrop(captured)
}
