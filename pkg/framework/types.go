package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background activities, e.g.
// the receive loop of a link.
type Runnable interface {
	Run(context.Context) error
}
