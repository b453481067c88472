package relay

import (
	"context"

	"github.com/bitsong/usb/internal/engine"
	"github.com/bitsong/usb/internal/ir"
)

// Loopback is an in-process engine.Relay that completes every dispatch at
// once. It stands in for the IBC transport in offline runs and scenario
// tests. When Fail is set, Send returns it and the engine reports the batch
// as failed.
type Loopback struct {
	Engine *engine.Engine
	Fail   error
}

// Send delivers a reply for d back to the engine.
func (l *Loopback) Send(_ context.Context, d ir.Dispatch) error {
	if l.Fail != nil {
		return l.Fail
	}
	_, err := l.Engine.Deliver(ir.Reply{
		DispatchID: d.ID,
		Token:      d.ReplyToken,
		Outcome:    ir.OutcomeSuccess,
	})
	return err
}
