package mprompt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mprompt-go/mprompt"
)

func TestRunIdentity(t *testing.T) {
	result, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		return arg
	}, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestYieldAndResume(t *testing.T) {
	var captured mprompt.Resumption

	result, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		v := mprompt.Yield(p, func(r mprompt.Resumption, yarg any) any {
			captured = r
			return "handler-saw:" + yarg.(string)
		}, "hello")
		return "after-yield:" + v.(string)
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "handler-saw:hello", result)
	require.NotNil(t, captured)

	final, err := mprompt.Resume(captured, "world")
	require.NoError(t, err)
	assert.Equal(t, "after-yield:world", final)
}

func TestExceptionPropagatesToCaller(t *testing.T) {
	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		assert.Equal(t, "boom", rec)
	}()
	_, _ = mprompt.Run(func(p *mprompt.Prompt, arg any) any {
		panic("boom")
	}, nil)
	t.Fatal("unreachable: Run should have propagated the panic")
}

func TestDoubleEntryIsUsageError(t *testing.T) {
	s := mprompt.NewSite()
	p := s.Create()
	_, err := s.Enter(p, func(p *mprompt.Prompt, arg any) any { return arg }, 1)
	require.NoError(t, err)

	_, err = s.Enter(p, func(p *mprompt.Prompt, arg any) any { return arg }, 1)
	require.Error(t, err)
	var merr *mprompt.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, mprompt.KindUsage, merr.Kind)
}

func TestNestedPromptsAndAncestry(t *testing.T) {
	result, err := mprompt.Run(func(outer *mprompt.Prompt, arg any) any {
		inner := outer.Create()
		v, err := outer.Site().Enter(inner, func(p *mprompt.Prompt, arg any) any {
			return mprompt.Yield(outer, func(r mprompt.Resumption, yarg any) any {
				rv, err := mprompt.Resume(r, "resumed-from-outer-handler")
				require.NoError(t, err)
				return rv
			}, "yield-to-outer")
		}, nil)
		require.NoError(t, err)
		return v
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "resumed-from-outer-handler", result)
}

func TestClearStackCacheIsSafe(t *testing.T) {
	_, err := mprompt.Run(func(p *mprompt.Prompt, arg any) any { return nil }, nil)
	require.NoError(t, err)
	mprompt.ClearStackCache()
}
