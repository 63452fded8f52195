package media

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/rs/zerolog/log"
)

// ConsumerCloser releases consumers on behalf of the registry.
type ConsumerCloser interface {
	CloseConsumer(id string) error
}

// Peer is the read-only view of one remote participant's received media.
type Peer struct {
	ID        string
	Stream    core.MediaStream
	Consumers map[core.MediaKind]string
}

type peerEntry struct {
	id     string
	tracks map[core.MediaKind]*Consumer
	stream core.MediaStream
}

func (e *peerEntry) recompute() {
	tracks := make([]core.RemoteTrack, 0, len(e.tracks))
	for _, kind := range core.Kinds {
		if c, ok := e.tracks[kind]; ok {
			tracks = append(tracks, c.Track())
		}
	}
	e.stream = core.MediaStream{ID: e.id, Tracks: tracks}
}

func (e *peerEntry) view() Peer {
	ids := make(map[core.MediaKind]string, len(e.tracks))
	for kind, c := range e.tracks {
		ids[kind] = c.ID
	}
	return Peer{ID: e.id, Stream: e.stream, Consumers: ids}
}

// PeerRegistry maps remote participant identity to its consumers and the
// combined stream built from them. A peer exists iff it has a consumer.
type PeerRegistry struct {
	closer ConsumerCloser
	peers  map[string]*peerEntry
}

func NewPeerRegistry(closer ConsumerCloser) *PeerRegistry {
	return &PeerRegistry{closer: closer, peers: make(map[string]*peerEntry)}
}

// AddConsumerTrack inserts c under participantID, replacing (and closing)
// any prior consumer of the same kind.
func (r *PeerRegistry) AddConsumerTrack(participantID string, c *Consumer) {
	e, ok := r.peers[participantID]
	if !ok {
		e = &peerEntry{id: participantID, tracks: make(map[core.MediaKind]*Consumer)}
		r.peers[participantID] = e
	}
	if prev, ok := e.tracks[c.Kind]; ok && prev.ID != c.ID {
		if err := r.closer.CloseConsumer(prev.ID); err != nil {
			log.Warn().Err(err).Str("module", "media.peers").Str("participant", participantID).Msg("close replaced consumer")
		}
	}
	e.tracks[c.Kind] = c
	e.recompute()
	log.Debug().Str("module", "media.peers").Str("participant", participantID).Str("kind", string(c.Kind)).Int("tracks", len(e.stream.Tracks)).Msg("peer track added")
}

// RemoveParticipant closes every consumer of id and drops the entry.
func (r *PeerRegistry) RemoveParticipant(id string) error {
	e, ok := r.peers[id]
	if !ok {
		return nil
	}
	delete(r.peers, id)
	var errs []error
	for kind, c := range e.tracks {
		if err := r.closer.CloseConsumer(c.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	log.Info().Str("module", "media.peers").Str("participant", id).Int("consumers", len(e.tracks)).Msg("peer removed")
	return errors.Join(errs...)
}

// Clear removes every peer, attempting every close.
func (r *PeerRegistry) Clear() error {
	var errs []error
	for id := range r.peers {
		if err := r.RemoveParticipant(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *PeerRegistry) Peer(id string) (Peer, bool) {
	e, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return e.view(), true
}

// Peers returns a snapshot ordered by participant id.
func (r *PeerRegistry) Peers() []Peer {
	out := make([]Peer, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, e.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *PeerRegistry) Len() int { return len(r.peers) }
