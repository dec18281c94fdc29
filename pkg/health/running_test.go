package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	results []bool
	errs    []error
	calls   int
}

func (f *fakeInspector) IsRunning(ctx context.Context, containerName string) (bool, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], err
	}
	return false, err
}

func TestWaitRunningFirstTry(t *testing.T) {
	insp := &fakeInspector{results: []bool{true}}
	err := WaitRunning(context.Background(), insp, "hangar-demo", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, insp.calls)
}

func TestWaitRunningEventualSuccess(t *testing.T) {
	insp := &fakeInspector{results: []bool{false, false, true}}
	err := WaitRunning(context.Background(), insp, "hangar-demo", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, insp.calls)
}

func TestWaitRunningExhaustsAttempts(t *testing.T) {
	insp := &fakeInspector{}
	err := WaitRunning(context.Background(), insp, "hangar-demo", 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, insp.calls)
	assert.Contains(t, err.Error(), "hangar-demo")
}

func TestWaitRunningInspectErrorKeepsPolling(t *testing.T) {
	insp := &fakeInspector{
		results: []bool{false, true},
		errs:    []error{errors.New("daemon hiccup"), nil},
	}
	err := WaitRunning(context.Background(), insp, "hangar-demo", 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, insp.calls)
}

func TestWaitRunningContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	insp := &fakeInspector{}
	err := WaitRunning(ctx, insp, "hangar-demo", 10, 100*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunningCheckerResult(t *testing.T) {
	up := &fakeInspector{results: []bool{true}}
	res := NewRunningChecker(up, "c1").Check(context.Background())
	assert.True(t, res.Healthy)

	down := &fakeInspector{results: []bool{false}}
	res = NewRunningChecker(down, "c1").Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Equal(t, "container not running", res.Message)

	broken := &fakeInspector{errs: []error{errors.New("boom")}}
	res = NewRunningChecker(broken, "c1").Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "boom")
}
