package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/meetclient/internal/app/media"
	"github.com/dkeye/meetclient/internal/core"
)

type stage struct {
	state State
	run   func(ctx context.Context) error
}

// setup runs the strict stage chain. Requests use a context detached from
// ctx: deactivation takes effect once the in-flight stage resolves.
func (o *Orchestrator) setup(ctx context.Context) error {
	sctx := context.WithoutCancel(ctx)
	stages := []stage{
		{StateAcquiringLocalMedia, o.acquire},
		{StateNegotiatingCapabilities, o.negotiate},
		{StateCreatingTransports, o.createTransports},
		{StateJoiningRoom, o.joinRoom},
		{StateProducingLocalMedia, o.produceLocal},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("deactivated before %s: %w", st.state, err)
		}
		o.setState(st.state)
		if err := st.run(sctx); err != nil {
			return fmt.Errorf("%s: %w", st.state, err)
		}
	}
	return nil
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	local, err := o.Source.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrAcquisition) {
			err = fmt.Errorf("%w: %w", core.ErrAcquisition, err)
		}
		return err
	}
	o.local = local
	for kind, t := range local.Tracks {
		o.enabled[kind] = t.Enabled()
	}

	sig, err := o.Signals.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}
	o.signal = sig
	return nil
}

func (o *Orchestrator) negotiate(ctx context.Context) error {
	var caps core.RtpCapabilities
	req := core.RouterCapabilitiesRequest{MeetingID: o.cfg.Media.MeetingID}
	if err := o.signal.Request(ctx, core.EventGetRouterRtpCapabilities, req, o.requestTimeout(), &caps); err != nil {
		return fmt.Errorf("router capabilities: %w", err)
	}

	neg := media.NewNegotiator(o.Engine.LocalCapabilities())
	if err := neg.Load(caps); err != nil {
		return err
	}
	if err := o.Engine.Configure(neg.RecvCapabilities()); err != nil {
		return fmt.Errorf("configure media engine: %w", err)
	}
	o.neg = neg
	o.tm = media.NewTransportManager(o.signal, o.Engine, neg, o.cfg.Media)
	o.peers = media.NewPeerRegistry(o.tm)
	o.logger.Info().
		Bool("can_audio", neg.CanProduce(core.KindAudio)).
		Bool("can_video", neg.CanProduce(core.KindVideo)).
		Msg("capabilities negotiated")
	return nil
}

func (o *Orchestrator) createTransports(ctx context.Context) error {
	dirs := []core.Direction{core.DirectionSend, core.DirectionRecv}
	for _, dir := range dirs {
		if err := o.tm.CreateTransport(ctx, dir); err != nil {
			return err
		}
	}
	for _, dir := range dirs {
		if err := o.tm.ConnectTransport(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) joinRoom(context.Context) error {
	msg := core.JoinRoomMessage{
		MeetingID: o.cfg.Media.MeetingID,
		User:      o.cfg.User,
		GroupID:   o.cfg.Meeting.GroupID,
	}
	if err := o.signal.Emit(core.EventJoinVideoRoom, msg); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	o.joined = true
	return nil
}

// produceLocal publishes each local track. Per-kind failures are isolated.
func (o *Orchestrator) produceLocal(ctx context.Context) error {
	for _, kind := range core.Kinds {
		track, ok := o.local.Track(kind)
		if !ok {
			o.logger.Debug().Str("kind", string(kind)).Msg("no local track, skipping produce")
			continue
		}
		if !o.neg.CanProduce(kind) {
			o.logger.Warn().Str("kind", string(kind)).Msg("router cannot receive kind, skipping produce")
			continue
		}
		if _, err := o.tm.Produce(ctx, track); err != nil {
			o.logger.Warn().Err(err).Str("kind", string(kind)).Msg("produce failed")
			continue
		}
		if !o.enabled[kind] {
			if err := o.tm.SetProducerPaused(kind, true); err != nil {
				o.logger.Warn().Err(err).Str("kind", string(kind)).Msg("pause disabled track")
			}
		}
	}
	return nil
}

func (o *Orchestrator) requestTimeout() time.Duration {
	if o.cfg.Media.Timeouts.Request > 0 {
		return o.cfg.Media.Timeouts.Request
	}
	return media.DefaultTimeouts().Request
}
