package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

type closeCounter int

func (c *closeCounter) Close() error {
	*c++
	return nil
}

func TestRunnerWaitNamesErrors(t *testing.T) {
	errBad := errors.New("bad")
	err := NewRunner().Go(
		NamedRun("ok", runFunc(func(context.Context) error { return nil })),
		NamedRun("canceled", runFunc(func(context.Context) error { return context.Canceled })),
		NamedRun("port", runFunc(func(context.Context) error { return errBad })),
	).Wait()
	require.Error(t, err)
	assert.Equal(t, "port: bad", err.Error())
	assert.ErrorIs(t, err, errBad)
}

func TestRunnerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx).Go(runFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	cancel()
	assert.NoError(t, r.Wait())
}

func TestRunWithContextCloser(t *testing.T) {
	var closed closeCounter
	assert.NoError(t, RunWithContextCloser(context.Background(), &closed, func() error { return nil }))
	assert.EqualValues(t, 1, closed)

	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	closer := &chanCloser{ch: unblock}
	cancel()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-unblock
		return errors.New("closed")
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, closer.n)
}

type chanCloser struct {
	ch chan struct{}
	n  int
}

func (c *chanCloser) Close() error {
	if c.n == 0 {
		close(c.ch)
	}
	c.n++
	return nil
}
