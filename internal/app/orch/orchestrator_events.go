package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/meetclient/internal/core"
)

// dispatch is the single entry point for inbound signaling events.
func (o *Orchestrator) dispatch(ctx context.Context, ev core.Event) {
	switch ev.Name {
	case core.EventExistingParticipants:
		o.handleExistingParticipants(ctx, ev)
	case core.EventUserJoinedVideo:
		o.handleUserJoined(ev)
	case core.EventNewProducer:
		o.handleNewProducer(ctx, ev)
	case core.EventUserLeftVideo:
		o.handleUserLeft(ev)
	case core.EventParticipantCountUpdated:
		o.handleParticipantCount(ev)
	case core.EventParticipantAudioChanged:
		o.handleAudioChanged(ev)
	case core.EventParticipantVideoChanged:
		o.handleVideoChanged(ev)
	case core.EventMeetingMessageReceived:
		o.handleMeetingMessage(ev)
	default:
		o.logger.Warn().Str("event", ev.Name).Msg("unknown signal event")
	}
}

func (o *Orchestrator) decode(ev core.Event, v any) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		o.logger.Error().Err(err).Str("event", ev.Name).Msg("bad event payload")
		return false
	}
	return true
}
