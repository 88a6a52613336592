package framework

import (
	"context"
	"time"
)

// Named is implemented by things reporting a name in logs and errors.
type Named interface {
	Name() string
}

// Runnable is a background worker stopped by canceling its context.
type Runnable interface {
	Run(context.Context) error
}

// Message is posted to the loop from outside, e.g. a byte to transmit,
// and consumed by a Controller in the next iteration.
type Message interface {
	NewMessage() Message
}

// Controller is invoked once per tick at the priority level it was
// registered with.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc adapts a func to Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// TimeSource reports the time of the current tick.
type TimeSource interface {
	Time() time.Time
}

// ControlContext is what a Controller sees of the current iteration.
type ControlContext interface {
	TimeSource
	// Tick counts iterations from 0.
	Tick() uint64
	Context() context.Context
	// PriorityLevel is the level being run.
	PriorityLevel() int
	// Messages holds the messages posted before the iteration started
	// and not yet taken by a higher priority level.
	Messages() MessageStore
	// PostRun adds one-shot hooks run after the controllers of the
	// current level. Hooks added from a post-run hook run in the next
	// iteration.
	PostRun(hooks ...Controller)

	LoopControl
}

// PriorityLevels is the number of priority levels, 0 runs first.
const PriorityLevels int = 16

// Priority levels.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense samples input lines: filters and pin readers.
	PrLvSense = PrLvHigh
	// PrLvControl steps the state machines on the sampled levels.
	PrLvControl = PrLvNormal
	// PrLvAcuate drives output lines and hands decoded bytes over.
	PrLvAcuate = PrLvLow
	// PrLvPostProc reports events after all lines settled.
	PrLvPostProc = PrLvIdle - 1
)

// LoopControl is the part of the loop reachable from any goroutine.
type LoopControl interface {
	// PreRunAt adds one-shot hooks run before the controllers of a level.
	PreRunAt(priorityLevel int, controllers ...Controller)
	// PostRunAt adds one-shot hooks run after the controllers of a level.
	PostRunAt(priorityLevel int, controllers ...Controller)
	PostMessage(Message)
	TriggerNext()
}

// MessageStore gives a Controller access to the pending messages.
type MessageStore interface {
	ProcessMessages(MessageProcessor)

	MessageAppender
}

// MessageAppender adds messages visible to later priority levels of
// the same iteration.
type MessageAppender interface {
	AddMessages(msgs ...Message)
}

// MessageProcessor is called for each pending message.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc adapts a func to MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext is the message being visited.
type MessageProcessingContext interface {
	CurrentMessage() Message
	// MessageTaken removes the message from the store.
	MessageTaken()
	// StopProcessing skips the remaining messages.
	StopProcessing()

	MessageAppender
}
