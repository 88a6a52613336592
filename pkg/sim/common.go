package sim

import (
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/line"
)

// EdgeListener is notified when a line changes level.
type EdgeListener interface {
	EdgeObserved(cc fx.ControlContext, name string, level line.Level)
}

// EdgeObservedFunc is the func form of EdgeListener.
type EdgeObservedFunc func(cc fx.ControlContext, name string, level line.Level)

// EdgeObserved implements EdgeListener.
func (f EdgeObservedFunc) EdgeObserved(cc fx.ControlContext, name string, level line.Level) {
	f(cc, name, level)
}

// EdgeSubscriber accepts EdgeListeners.
type EdgeSubscriber interface {
	SubscribeEdges(EdgeListener)
}

// EdgeCaster provides a subscriber and implements
// listener to cast notifcations.
type EdgeCaster struct {
	listeners []EdgeListener
}

// SubscribeEdges implements EdgeSubscriber.
func (c *EdgeCaster) SubscribeEdges(ln EdgeListener) {
	c.listeners = append(c.listeners, ln)
}

// EdgeObserved implements EdgeListener.
func (c *EdgeCaster) EdgeObserved(cc fx.ControlContext, name string, level line.Level) {
	for _, ln := range c.listeners {
		ln.EdgeObserved(cc, name, level)
	}
}
