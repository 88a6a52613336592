package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Loop advances line samplers, state machines and drivers one tick
// per iteration, in priority order.
//
// Run paces iterations in real time with Interval per tick, Step and
// RunTicks advance as fast as possible for simulation.
type Loop struct {
	Interval time.Duration

	controllers [PriorityLevels]controllerList

	runners []Runnable

	messages []Message
	lock     sync.Mutex

	tick  uint64
	epoch time.Time

	wake chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	*Loop
	ctx           context.Context
	tick          uint64
	time          time.Time
	priorityLevel int
	messages      []Message
}

// controllerList is one priority level. Hooks run once around the
// registered controllers and are cleared.
type controllerList struct {
	controllers []Controller

	lock      sync.Mutex
	preHooks  []Controller
	postHooks []Controller
}

// DefaultInterval is the real time duration of a tick when not set.
const DefaultInterval = time.Millisecond

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return NewLoopWithInterval(DefaultInterval)
}

// NewLoopWithInterval creates a Loop with specified tick duration.
// A Loop must be created by one of the constructors.
func NewLoopWithInterval(interval time.Duration) *Loop {
	return &Loop{Interval: interval, wake: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	lst := &l.controllers[priorityLevel]
	lst.controllers = append(lst.controllers, ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Go(ctx).Wait()

	ticker := time.NewTicker(l.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(ctx, time.Now())
		case <-l.wake:
			l.runIteration(ctx, time.Now())
		}
	}
}

// Go starts the registered Runnables in the background. Callers
// driving the loop with Step use it to run the background work.
func (l *Loop) Go(ctx context.Context) *Runner {
	return NewRunnerWith(ctx).Go(l.runners...)
}

// Step runs exactly one iteration. The time of the iteration is
// simulated from the tick number and Interval. Runnables are not
// started.
func (l *Loop) Step(ctx context.Context) {
	if l.epoch.IsZero() {
		l.epoch = time.Now()
	}
	l.runIteration(ctx, l.epoch.Add(time.Duration(l.Tick())*l.interval()))
}

// RunTicks runs n iterations with Step, stopping early when ctx is
// done.
func (l *Loop) RunTicks(ctx context.Context, n uint64) error {
	for i := uint64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Step(ctx)
	}
	return nil
}

// RunUntil steps until cond returns true or limit iterations passed.
// It returns false if the limit is reached.
func (l *Loop) RunUntil(ctx context.Context, limit uint64, cond func() bool) bool {
	for i := uint64(0); i < limit; i++ {
		if cond() {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		l.Step(ctx)
	}
	return cond()
}

// Tick returns the number of the next iteration.
func (l *Loop) Tick() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.tick
}

func (l *Loop) interval() time.Duration {
	if l.Interval == 0 {
		return DefaultInterval
	}
	return l.Interval
}

// PreRunAt implements LoopControl.
func (l *Loop) PreRunAt(priorityLevel int, hooks ...Controller) {
	c := &l.controllers[priorityLevel]
	c.addHooks(&c.preHooks, hooks)
}

// PostRunAt implements LoopControl.
func (l *Loop) PostRunAt(priorityLevel int, hooks ...Controller) {
	c := &l.controllers[priorityLevel]
	c.addHooks(&c.postHooks, hooks)
}

// PostMessage queues msg for the next iteration.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages = append(l.messages, msg)
	l.lock.Unlock()
}

// TriggerNext makes Run start the next iteration without waiting
// for the ticker. A stepped loop ignores it.
func (l *Loop) TriggerNext() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) runIteration(ctx context.Context, now time.Time) {
	iter := &loopIteration{Loop: l, time: now}
	l.lock.Lock()
	iter.tick = l.tick
	l.tick++
	iter.messages, l.messages = l.messages, nil
	l.lock.Unlock()
	iter.ctx = ctx
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		l.controllers[i].run(iter)
	}
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) Tick() uint64 {
	return t.tick
}

func (t *loopIteration) PriorityLevel() int {
	return t.priorityLevel
}

func (t *loopIteration) Messages() MessageStore {
	return t
}

func (t *loopIteration) PostRun(hooks ...Controller) {
	t.PostRunAt(t.priorityLevel, hooks...)
}

type messageContext struct {
	iter  *loopIteration
	msg   Message
	taken bool
	stop  bool
}

func (c *messageContext) CurrentMessage() Message     { return c.msg }
func (c *messageContext) MessageTaken()               { c.taken = true }
func (c *messageContext) StopProcessing()             { c.stop = true }
func (c *messageContext) AddMessages(msgs ...Message) { c.iter.AddMessages(msgs...) }

// ProcessMessages visits the pending messages in posting order. Taken
// messages are dropped, the rest stay for the next priority level,
// followed by messages added while processing.
func (t *loopIteration) ProcessMessages(proc MessageProcessor) {
	pending := t.messages
	t.messages = nil
	var kept []Message
	for n, msg := range pending {
		mc := &messageContext{iter: t, msg: msg}
		proc.ProcessMessage(mc)
		if !mc.taken {
			kept = append(kept, msg)
		}
		if mc.stop {
			kept = append(kept, pending[n+1:]...)
			break
		}
	}
	t.messages = append(kept, t.messages...)
}

func (t *loopIteration) AddMessages(msgs ...Message) {
	t.messages = append(t.messages, msgs...)
}

func (c *controllerList) addHooks(hooks *[]Controller, add []Controller) {
	c.lock.Lock()
	*hooks = append(*hooks, add...)
	c.lock.Unlock()
}

func (c *controllerList) takeHooks(hooks *[]Controller) []Controller {
	c.lock.Lock()
	defer c.lock.Unlock()
	taken := *hooks
	*hooks = nil
	return taken
}

func (c *controllerList) run(iter *loopIteration) {
	iter.runEach(c.takeHooks(&c.preHooks))
	iter.runEach(c.controllers)
	iter.runEach(c.takeHooks(&c.postHooks))
}

func (t *loopIteration) runEach(ctls []Controller) {
	for _, ctl := range ctls {
		if err := ctl.Control(t); err != nil {
			glog.Errorf("tick %d level %d: %v", t.tick, t.priorityLevel, err)
		}
	}
}
