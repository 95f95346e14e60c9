package app

import "github.com/dkeye/Chat/internal/core"

type BackpressureAction int

const (
	// DropEvent loses the event for the slow subscriber only.
	DropEvent BackpressureAction = iota
	// CloseSubscriber unsubscribes the slow subscriber; its owner sees the queue close.
	CloseSubscriber
)

type Policy interface {
	OnBackpressure(sub *core.Subscription) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackpressure(*core.Subscription) BackpressureAction { return DropEvent }

type ClosePolicy struct{}

func (ClosePolicy) OnBackpressure(*core.Subscription) BackpressureAction { return CloseSubscriber }

// PolicyByName maps the slow_consumer config value to a policy.
func PolicyByName(name string) Policy {
	if name == "close" {
		return ClosePolicy{}
	}
	return DropPolicy{}
}
