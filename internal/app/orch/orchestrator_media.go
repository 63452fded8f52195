package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/meetclient/internal/core"
)

func (o *Orchestrator) handleNewProducer(ctx context.Context, ev core.Event) {
	var p core.NewProducerEvent
	if !o.decode(ev, &p) {
		return
	}
	if p.SocketID == "" || p.ProducerID == "" {
		o.logger.Warn().Str("event", ev.Name).Msg("producer announcement without ids")
		return
	}
	o.consume(ctx, p.SocketID, p.ProducerID, p.Kind)
}

// consume adds one remote track. Failures affect only that track.
func (o *Orchestrator) consume(ctx context.Context, participantID, producerID string, kind core.MediaKind) {
	if o.tm.ConsumingProducer(producerID) {
		return
	}
	c, err := o.tm.Consume(ctx, participantID, producerID, kind)
	if err != nil {
		o.logger.Warn().
			Err(err).
			Str("participant", participantID).
			Str("producer_id", producerID).
			Str("kind", string(kind)).
			Msg("consume failed, track skipped")
		return
	}
	o.peers.AddConsumerTrack(participantID, c)
}

func (o *Orchestrator) handleUserLeft(ev core.Event) {
	var p core.UserLeftEvent
	if !o.decode(ev, &p) {
		return
	}
	if err := o.peers.RemoveParticipant(p.SocketID); err != nil {
		o.logger.Warn().Err(err).Str("participant", p.SocketID).Msg("close consumers of departed peer")
	}
	o.roster.Remove(p.SocketID)
}

// ToggleAudio enables or disables the local microphone track.
func (o *Orchestrator) ToggleAudio(ctx context.Context, on bool) error {
	return o.exec(ctx, func(context.Context) error { return o.toggle(core.KindAudio, on) })
}

// ToggleVideo enables or disables the local camera track.
func (o *Orchestrator) ToggleVideo(ctx context.Context, on bool) error {
	return o.exec(ctx, func(context.Context) error { return o.toggle(core.KindVideo, on) })
}

func (o *Orchestrator) toggle(kind core.MediaKind, on bool) error {
	track, ok := o.local.Track(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoLocalTrack, kind)
	}
	if o.enabled[kind] == on {
		return nil
	}
	track.SetEnabled(on)
	if err := o.tm.SetProducerPaused(kind, !on); err != nil {
		track.SetEnabled(!on)
		return err
	}
	o.enabled[kind] = on

	var msg any
	event := core.EventToggleAudio
	if kind == core.KindVideo {
		event = core.EventToggleVideo
		msg = core.ToggleVideoMessage{MeetingID: o.cfg.Media.MeetingID, IsVideoOn: on}
	} else {
		msg = core.ToggleAudioMessage{MeetingID: o.cfg.Media.MeetingID, IsAudioOn: on}
	}
	if err := o.signal.Emit(event, msg); err != nil {
		o.logger.Warn().Err(err).Str("event", event).Msg("toggle not announced")
	}
	o.logger.Info().Str("kind", string(kind)).Bool("on", on).Msg("local track toggled")
	return nil
}
