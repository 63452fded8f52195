package rtc

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type SinkState int32

const (
	SinkIdle SinkState = iota
	SinkRunning
	SinkStopped
)

type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Sink drains one received track and keeps receive counters. It is also
// the core.RemoteTrack handed to the presentation layer.
type Sink struct {
	id   string
	kind core.MediaKind
	src  rtpReader

	state   atomic.Int32
	packets atomic.Uint64
	bytes   atomic.Uint64
	cancel  context.CancelFunc
	done    chan struct{}

	// onPacket, when set before Start, sees every packet read.
	onPacket func(*rtp.Packet)
}

func NewSink(id string, kind core.MediaKind, src rtpReader) *Sink {
	return &Sink{id: id, kind: kind, src: src, done: make(chan struct{})}
}

func (s *Sink) ID() string           { return s.id }
func (s *Sink) Kind() core.MediaKind { return s.kind }

func (s *Sink) Stats() core.TrackStats {
	return core.TrackStats{Packets: s.packets.Load(), Bytes: s.bytes.Load()}
}

func (s *Sink) State() SinkState { return SinkState(s.state.Load()) }

// Start begins draining. Only the first call has an effect.
func (s *Sink) Start(ctx context.Context, logger zerolog.Logger) bool {
	if !s.state.CompareAndSwap(int32(SinkIdle), int32(SinkRunning)) {
		return false
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx, logger)
	return true
}

// Stop ends the loop once the blocked read returns; closing the source
// unblocks it.
func (s *Sink) Stop() {
	prev := SinkState(s.state.Swap(int32(SinkStopped)))
	if prev == SinkRunning && s.cancel != nil {
		s.cancel()
	}
	if prev == SinkIdle {
		close(s.done)
	}
}

// Done is closed once the sink no longer reads.
func (s *Sink) Done() <-chan struct{} { return s.done }

func (s *Sink) loop(ctx context.Context, logger zerolog.Logger) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("track_id", s.id).Msg("sink ctx done")
			return
		default:
		}
		pkt, _, err := s.src.ReadRTP()
		if err != nil {
			if s.State() != SinkStopped {
				logger.Warn().Err(err).Str("track_id", s.id).Msg("sink read RTP error, stopping")
				s.state.Store(int32(SinkStopped))
			}
			return
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(pkt.MarshalSize()))
		if s.onPacket != nil {
			s.onPacket(pkt)
		}
	}
}
