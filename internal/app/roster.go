package app

import (
	"sort"
	"sync"

	"github.com/dkeye/meetclient/internal/domain"
	"github.com/rs/zerolog/log"
)

// Roster tracks remote participants of the meeting, independent of media.
type Roster struct {
	mu      sync.RWMutex
	entries map[string]*domain.Participant
	count   int
}

func NewRoster() *Roster {
	return &Roster{entries: make(map[string]*domain.Participant)}
}

// Upsert adds or replaces the entry for p.SocketID.
func (r *Roster) Upsert(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.entries[p.SocketID]
	r.entries[p.SocketID] = &p
	if !existed {
		log.Info().Str("module", "app.roster").Str("sid", p.SocketID).Str("name", p.User.Name).Msg("participant joined")
	}
}

func (r *Roster) Remove(socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[socketID]; !ok {
		return false
	}
	delete(r.entries, socketID)
	log.Info().Str("module", "app.roster").Str("sid", socketID).Msg("participant left")
	return true
}

func (r *Roster) SetAudio(socketID string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[socketID]
	if !ok {
		return false
	}
	p.AudioOn = on
	log.Debug().Str("module", "app.roster").Str("sid", socketID).Bool("audio", on).Msg("audio changed")
	return true
}

func (r *Roster) SetVideo(socketID string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[socketID]
	if !ok {
		return false
	}
	p.VideoOn = on
	log.Debug().Str("module", "app.roster").Str("sid", socketID).Bool("video", on).Msg("video changed")
	return true
}

func (r *Roster) Get(socketID string) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[socketID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// SetCount records the server-reported participant count.
func (r *Roster) SetCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = n
}

// Count is the server-reported count, or the local view (remote entries
// plus self) until the server reports one.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count > 0 {
		return r.count
	}
	return len(r.entries) + 1
}

func (r *Roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SocketID < out[j].SocketID })
	return out
}

func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*domain.Participant)
	r.count = 0
}
