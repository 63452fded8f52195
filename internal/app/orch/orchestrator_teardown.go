package orch

import (
	"github.com/dkeye/meetclient/internal/core"
	"github.com/sourcegraph/conc/panics"
)

// teardown releases every session resource. Each step is attempted even if
// an earlier one fails or panics; nothing is propagated.
func (o *Orchestrator) teardown() {
	o.setState(StateClosing)

	if o.signal != nil {
		if o.joined {
			o.bestEffort("leave room", func() error {
				return o.signal.Emit(core.EventLeaveVideoRoom, core.LeaveRoomMessage{MeetingID: o.cfg.Media.MeetingID})
			})
		}
		o.bestEffort("close signaling", o.signal.Close)
	}
	if o.tm != nil {
		o.bestEffort("close producers", o.tm.CloseProducers)
	}
	if o.peers != nil {
		o.bestEffort("close consumers", o.peers.Clear)
	}
	if o.tm != nil {
		o.bestEffort("close unowned consumers", o.tm.CloseConsumers)
		o.bestEffort("close transports", o.tm.CloseTransports)
	}
	if o.local != nil {
		for _, kind := range core.Kinds {
			if t, ok := o.local.Track(kind); ok {
				o.bestEffort("stop local "+string(kind), t.Stop)
			}
		}
	}
	o.joined = false
	o.roster.Clear()
	o.publish()

	o.setState(StateIdle)
	o.logger.Info().Msg("session closed")
}

func (o *Orchestrator) bestEffort(step string, fn func() error) {
	var err error
	if r := panics.Try(func() { err = fn() }); r != nil {
		err = r.AsError()
	}
	if err != nil {
		o.logger.Warn().Err(err).Str("step", step).Msg("teardown step failed")
	}
}
