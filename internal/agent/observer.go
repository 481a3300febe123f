package agent

import "github.com/vinayprograms/gatedagent/internal/trace"

// Observer receives run progress. Calls happen on the goroutine running
// the loop.
type Observer interface {
	OnStep(step trace.Step)
	OnComplete(res Result)
}

// TokenObserver additionally receives synthesis output as it streams.
type TokenObserver interface {
	Observer
	OnToken(chunk string)
}

type nopObserver struct{}

func (nopObserver) OnStep(trace.Step) {}
func (nopObserver) OnComplete(Result) {}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step     func(trace.Step)
	Complete func(Result)
}

func (o ObserverFuncs) OnStep(s trace.Step) {
	if o.Step != nil {
		o.Step(s)
	}
}

func (o ObserverFuncs) OnComplete(r Result) {
	if o.Complete != nil {
		o.Complete(r)
	}
}
