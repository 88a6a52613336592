package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMsg struct {
	val int
}

func (m *testMsg) NewMessage() Message { return &testMsg{} }

type recorder struct {
	events []string
}

func (r *recorder) at(name string) Controller {
	return ControlFunc(func(ControlContext) error {
		r.events = append(r.events, name)
		return nil
	})
}

func TestLoopPriorityOrder(t *testing.T) {
	var rec recorder
	l := NewLoop()
	l.AddController(PrLvPostProc, rec.at("post"))
	l.AddController(PrLvControl, rec.at("control"))
	l.AddController(PrLvSense, rec.at("sense"))
	l.AddController(PrLvAcuate, rec.at("acuate"))
	l.Step(context.Background())
	assert.Equal(t, []string{"sense", "control", "acuate", "post"}, rec.events)
}

func TestLoopStepTicks(t *testing.T) {
	l := NewLoopWithInterval(time.Microsecond)
	var ticks []uint64
	var times []time.Time
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		ticks = append(ticks, cc.Tick())
		times = append(times, cc.Time())
		return nil
	}))
	require.NoError(t, l.RunTicks(context.Background(), 4))
	assert.Equal(t, []uint64{0, 1, 2, 3}, ticks)
	assert.EqualValues(t, 4, l.Tick())
	for n := 1; n < len(times); n++ {
		assert.Equal(t, time.Microsecond, times[n].Sub(times[n-1]))
	}
}

func TestLoopRunTicksCanceled(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		if cc.Tick() == 2 {
			cancel()
		}
		return nil
	}))
	assert.Equal(t, context.Canceled, l.RunTicks(ctx, 10))
	assert.EqualValues(t, 3, l.Tick())
}

func TestLoopRunUntil(t *testing.T) {
	l := NewLoop()
	assert.True(t, l.RunUntil(context.Background(), 10, func() bool { return l.Tick() == 5 }))
	assert.EqualValues(t, 5, l.Tick())
	assert.False(t, l.RunUntil(context.Background(), 3, func() bool { return false }))
	assert.EqualValues(t, 8, l.Tick())
}

func TestLoopHooks(t *testing.T) {
	var rec recorder
	l := NewLoop()
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		rec.events = append(rec.events, "ctl")
		if cc.Tick() == 0 {
			cc.PostRun(rec.at("post"))
			cc.PreRunAt(PrLvLow, rec.at("pre-low"))
		}
		return nil
	}))
	l.AddController(PrLvLow, rec.at("low"))
	require.NoError(t, l.RunTicks(context.Background(), 2))
	assert.Equal(t, []string{"ctl", "post", "pre-low", "low", "ctl", "low"}, rec.events)
}

func TestLoopMessages(t *testing.T) {
	l := NewLoop()
	var got []int
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			if m, ok := mc.CurrentMessage().(*testMsg); ok && m.val%2 == 0 {
				got = append(got, m.val)
				mc.MessageTaken()
			}
		}))
		return nil
	}))
	var left []int
	l.AddController(PrLvLow, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			left = append(left, mc.CurrentMessage().(*testMsg).val)
			mc.MessageTaken()
		}))
		return nil
	}))
	for n := 1; n <= 4; n++ {
		l.PostMessage(&testMsg{val: n})
	}
	l.Step(context.Background())
	assert.Equal(t, []int{2, 4}, got)
	assert.Equal(t, []int{1, 3}, left)

	got, left = nil, nil
	l.Step(context.Background())
	assert.Empty(t, got)
	assert.Empty(t, left)
}

func TestLoopControllerErrorContinues(t *testing.T) {
	var rec recorder
	l := NewLoop()
	l.AddController(PrLvNormal,
		ControlFunc(func(ControlContext) error { return errors.New("broken") }),
		rec.at("next"))
	l.Step(context.Background())
	assert.Equal(t, []string{"next"}, rec.events)
}

func TestLoopRun(t *testing.T) {
	l := NewLoopWithInterval(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		if cc.Tick() >= 3 {
			cancel()
		}
		return nil
	}))
	assert.Equal(t, context.Canceled, l.Run(ctx))
	assert.True(t, l.Tick() >= 4)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	assert.NoError(t, errs.Add(nil).Aggregate())
	err := errs.Add(errors.New("a"), nil, errors.New("b")).Aggregate()
	require.Error(t, err)
	assert.Equal(t, "Multiple errors:\na\nb", err.Error())
}

func TestLoopTriggerNext(t *testing.T) {
	l := NewLoopWithInterval(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.AddController(PrLvNormal, ControlFunc(func(cc ControlContext) error {
		if cc.Tick() >= 2 {
			cancel()
			return nil
		}
		cc.TriggerNext()
		return nil
	}))
	go l.TriggerNext()
	l.TriggerNext()
	assert.Equal(t, context.Canceled, l.Run(ctx))
	assert.EqualValues(t, 3, l.Tick())
}
