package orch

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dkeye/meetclient/internal/app"
	"github.com/dkeye/meetclient/internal/core"
	"github.com/dkeye/meetclient/internal/domain"
	"github.com/google/uuid"
)

// handleExistingParticipants accepts either a bare array or an object with
// a participants field.
func (o *Orchestrator) handleExistingParticipants(ctx context.Context, ev core.Event) {
	var list []core.ParticipantInfo
	if err := json.Unmarshal(ev.Data, &list); err != nil {
		var wrapped core.ExistingParticipantsEvent
		if !o.decode(ev, &wrapped) {
			return
		}
		list = wrapped.Participants
	}
	for _, p := range list {
		o.upsertParticipant(p)
		for _, prod := range p.Producers {
			o.consume(ctx, p.SocketID, prod.ProducerID, prod.Kind)
		}
	}
	o.logger.Info().Int("count", len(list)).Msg("existing participants")
}

func (o *Orchestrator) handleUserJoined(ev core.Event) {
	var p core.ParticipantInfo
	if !o.decode(ev, &p) {
		return
	}
	o.upsertParticipant(p)
}

func (o *Orchestrator) upsertParticipant(p core.ParticipantInfo) {
	if p.SocketID == "" {
		return
	}
	o.roster.Upsert(domain.Participant{
		SocketID: p.SocketID,
		User:     p.User,
		AudioOn:  p.IsAudioOn,
		VideoOn:  p.IsVideoOn,
	})
}

func (o *Orchestrator) handleParticipantCount(ev core.Event) {
	var p core.ParticipantCountEvent
	if o.decode(ev, &p) {
		o.roster.SetCount(p.Count)
	}
}

func (o *Orchestrator) handleAudioChanged(ev core.Event) {
	var p core.AudioChangedEvent
	if o.decode(ev, &p) {
		o.roster.SetAudio(p.SocketID, p.IsAudioOn)
	}
}

func (o *Orchestrator) handleVideoChanged(ev core.Event) {
	var p core.VideoChangedEvent
	if o.decode(ev, &p) {
		o.roster.SetVideo(p.SocketID, p.IsVideoOn)
	}
}

func (o *Orchestrator) handleMeetingMessage(ev core.Event) {
	var p core.MeetingMessageEvent
	if !o.decode(ev, &p) {
		return
	}
	msg := domain.ChatMessage{ID: p.ID, User: p.User, Text: p.Message, SentAt: time.Now()}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if p.Timestamp > 0 {
		msg.SentAt = time.UnixMilli(p.Timestamp)
	}
	o.chat.Append(msg)
}

// SendChat posts a meeting message. Own messages appear in the chat log
// when the server echoes them back.
func (o *Orchestrator) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return o.exec(ctx, func(context.Context) error {
		if !o.cfg.ChatLimiter.Allow() {
			return app.ErrRateLimited
		}
		return o.signal.Emit(core.EventSendMeetingMessage, core.SendMessageMessage{
			MeetingID: o.cfg.Media.MeetingID,
			Message:   text,
			User:      o.cfg.User,
		})
	})
}
