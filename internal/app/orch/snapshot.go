package orch

import (
	"github.com/dkeye/meetclient/internal/core"
	"github.com/dkeye/meetclient/internal/domain"
)

type TrackView struct {
	ID    string          `json:"id"`
	Kind  core.MediaKind  `json:"kind"`
	Stats core.TrackStats `json:"stats"`
}

type PeerView struct {
	ID      string      `json:"id"`
	Name    string      `json:"name,omitempty"`
	AudioOn bool        `json:"audioOn"`
	VideoOn bool        `json:"videoOn"`
	Tracks  []TrackView `json:"tracks"`
}

// Snapshot is the read-only state exposed to the presentation layer.
type Snapshot struct {
	State            State                `json:"state"`
	Connected        bool                 `json:"connected"`
	Failure          string               `json:"failure,omitempty"`
	MeetingID        domain.MeetingID     `json:"meetingId"`
	User             domain.User          `json:"user"`
	AudioEnabled     bool                 `json:"audioEnabled"`
	VideoEnabled     bool                 `json:"videoEnabled"`
	Peers            []PeerView           `json:"peers"`
	Participants     []domain.Participant `json:"participants"`
	ParticipantCount int                  `json:"participantCount"`
	Messages         []domain.ChatMessage `json:"messages"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	state := o.state
	failure := o.failure
	peers := o.peerViews
	o.mu.RUnlock()

	s := Snapshot{
		State:            state,
		Connected:        state == StateActive,
		MeetingID:        o.cfg.Meeting.ID,
		User:             o.cfg.User,
		Participants:     o.roster.Snapshot(),
		ParticipantCount: o.roster.Count(),
		Messages:         o.chat.Snapshot(),
		Peers:            make([]PeerView, 0, len(peers)),
	}
	if failure != nil {
		s.Failure = failure.Error()
	}
	if state == StateActive {
		s.AudioEnabled, s.VideoEnabled = o.localFlags()
	}

	for _, p := range peers {
		v := PeerView{ID: p.ID, Tracks: make([]TrackView, 0, len(p.Stream.Tracks))}
		if meta, ok := o.roster.Get(p.ID); ok {
			v.Name = meta.User.Name
			v.AudioOn = meta.AudioOn
			v.VideoOn = meta.VideoOn
		}
		for _, t := range p.Stream.Tracks {
			v.Tracks = append(v.Tracks, TrackView{ID: t.ID(), Kind: t.Kind(), Stats: t.Stats()})
		}
		s.Peers = append(s.Peers, v)
	}
	return s
}
