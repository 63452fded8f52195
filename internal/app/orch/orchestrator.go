// Package orch drives one media session: setup, the reactive active phase
// and teardown. All session state is owned by the goroutine running Run.
package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meetclient/internal/app"
	"github.com/dkeye/meetclient/internal/app/media"
	"github.com/dkeye/meetclient/internal/core"
	"github.com/dkeye/meetclient/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRunning = errors.New("session already started")
	ErrNotActive      = errors.New("session not active")
	ErrNoLocalTrack   = errors.New("no local track")
	ErrEmptyMessage   = errors.New("empty message")
)

type Config struct {
	Meeting domain.Meeting
	User    domain.User
	// Media carries request timeouts and simulcast ceilings; MeetingID is
	// filled from Meeting.
	Media       media.Options
	ChatLimiter *app.RateLimiter
	ChatHistory int
}

type command struct {
	fn    func(ctx context.Context) error
	reply chan error
}

type Orchestrator struct {
	Signals core.SignalDialer
	Source  core.MediaSource
	Engine  core.MediaEngine

	cfg    Config
	logger zerolog.Logger

	// Owned by the Run goroutine.
	signal  core.SignalChannel
	local   *core.LocalMedia
	enabled map[core.MediaKind]bool
	neg     *media.Negotiator
	tm      *media.TransportManager
	peers   *media.PeerRegistry
	joined  bool

	roster *app.Roster
	chat   *app.ChatLog

	cmds    chan command
	done    chan struct{}
	running atomic.Bool

	mu        sync.RWMutex
	state     State
	history   []State
	failure   error
	peerViews []media.Peer
	localOn   map[core.MediaKind]bool
}

func New(signals core.SignalDialer, source core.MediaSource, engine core.MediaEngine, cfg Config) *Orchestrator {
	cfg.Media.MeetingID = string(cfg.Meeting.ID)
	return &Orchestrator{
		Signals: signals,
		Source:  source,
		Engine:  engine,
		cfg:     cfg,
		logger: log.With().
			Str("module", "orch").
			Str("meeting", string(cfg.Meeting.ID)).
			Str("user", string(cfg.User.ID)).
			Logger(),
		enabled: make(map[core.MediaKind]bool),
		roster:  app.NewRoster(),
		chat:    app.NewChatLog(cfg.ChatHistory),
		cmds:    make(chan command),
		done:    make(chan struct{}),
		history: []State{StateIdle},
	}
}

// Run sets the session up, serves it until ctx is done or the signaling
// connection ends, then tears it down. An Orchestrator runs once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(o.done)

	if err := o.setup(ctx); err != nil {
		o.logger.Error().Err(err).Msg("session setup failed")
		o.fail(err)
		o.teardown()
		return err
	}
	o.setState(StateActive)
	o.publish()
	o.logger.Info().Msg("session active")

	err := o.loop(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("session ended")
		o.fail(err)
	}
	o.teardown()
	return err
}

func (o *Orchestrator) loop(ctx context.Context) error {
	events := o.signal.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return core.ErrSignalClosed
			}
			o.dispatch(ctx, ev)
			o.publish()
		case cmd := <-o.cmds:
			err := cmd.fn(ctx)
			o.publish()
			cmd.reply <- err
		}
	}
}

// exec runs fn on the session goroutine.
func (o *Orchestrator) exec(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.State() != StateActive {
		return ErrNotActive
	}
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case o.cmds <- cmd:
	case <-o.done:
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// History lists every state entered, in order.
func (o *Orchestrator) History() []State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]State(nil), o.history...)
}

func (o *Orchestrator) Failure() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.failure
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.history = append(o.history, s)
	o.mu.Unlock()
	o.logger.Debug().Str("state", s.String()).Msg("state changed")
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failure == nil {
		o.failure = err
	}
}

// publish refreshes the views read by Snapshot.
func (o *Orchestrator) publish() {
	var views []media.Peer
	if o.peers != nil {
		views = o.peers.Peers()
	}
	on := make(map[core.MediaKind]bool, len(o.enabled))
	for kind, v := range o.enabled {
		on[kind] = v
	}
	o.mu.Lock()
	o.peerViews = views
	o.localOn = on
	o.mu.Unlock()
}

func (o *Orchestrator) localFlags() (audio, video bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.localOn[core.KindAudio], o.localOn[core.KindVideo]
}
