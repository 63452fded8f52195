package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/webrtc/v4"
)

// LocalTrack is a capture track without media.
type LocalTrack struct {
	mu      sync.Mutex
	id      string
	kind    core.MediaKind
	enabled bool
	live    bool
	StopErr error
}

func NewLocalTrack(kind core.MediaKind) *LocalTrack {
	return &LocalTrack{id: "local-" + string(kind), kind: kind, enabled: true, live: true}
}

func (t *LocalTrack) ID() string                    { return t.id }
func (t *LocalTrack) Kind() core.MediaKind          { return t.kind }
func (t *LocalTrack) TrackLocal() webrtc.TrackLocal { return nil }

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = on
}

func (t *LocalTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Stop always ends the track, even when it reports StopErr.
func (t *LocalTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
	return t.StopErr
}

// Source returns Media or Err from Acquire.
type Source struct {
	Media *core.LocalMedia
	Err   error
}

func NewSource(kinds ...core.MediaKind) *Source {
	m := &core.LocalMedia{Tracks: make(map[core.MediaKind]core.LocalTrack)}
	for _, k := range kinds {
		m.Tracks[k] = NewLocalTrack(k)
	}
	return &Source{Media: m}
}

func (s *Source) Acquire(context.Context) (*core.LocalMedia, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Media, nil
}

// RemoteTrack is a received track without media.
type RemoteTrack struct {
	id   string
	kind core.MediaKind
}

func (t *RemoteTrack) ID() string             { return t.id }
func (t *RemoteTrack) Kind() core.MediaKind   { return t.kind }
func (t *RemoteTrack) Stats() core.TrackStats { return core.TrackStats{} }

type Producer struct {
	mu       sync.Mutex
	Kind     core.MediaKind
	Params   core.RtpParameters
	paused   bool
	closed   bool
	Pauses   int
	Resumes  int
	CloseErr error
}

func (p *Producer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return errors.New("producer already paused")
	}
	p.paused = true
	p.Pauses++
	return nil
}

func (p *Producer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return errors.New("producer not paused")
	}
	p.paused = false
	p.Resumes++
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.CloseErr
}

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	mu       sync.Mutex
	Opts     core.ConsumeOptions
	track    *RemoteTrack
	resumed  bool
	closed   bool
	CloseErr error
}

func (c *Consumer) Track() core.RemoteTrack { return c.track }

func (c *Consumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumed = true
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

func (c *Consumer) Resumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Transport records ordering violations: Produce or Consume before Connect.
type Transport struct {
	mu         sync.Mutex
	id         string
	dir        core.Direction
	handler    core.ConnectHandler
	connected  bool
	closed     bool
	violations int
	producers  []*Producer
	consumers  []*Consumer

	ConnectErr error
	// ConnectHang makes Connect wait for ctx after the handshake request,
	// like an unreachable ICE peer.
	ConnectHang bool
	CloseErr    error
	// ConsumeErr fails Consume for matching options when it returns non-nil.
	ConsumeErr func(core.ConsumeOptions) error
	// ProducerCloseErr is set on every producer created by this transport.
	ProducerCloseErr error
	ConsumerCloseErr error
}

func (t *Transport) ID() string                { return t.id }
func (t *Transport) Direction() core.Direction { return t.dir }

func (t *Transport) OnConnect(h core.ConnectHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		return errors.New("no connect handler")
	}
	local := core.DtlsParameters{
		Role:         core.DtlsRoleClient,
		Fingerprints: []core.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
	}
	if err := h(ctx, local); err != nil {
		return err
	}
	t.mu.Lock()
	hang := t.ConnectHang
	t.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.connected = true
	return nil
}

func (t *Transport) Produce(ctx context.Context, opts core.ProduceOptions, register core.ProduceHandler) (core.ProducerHandle, error) {
	t.mu.Lock()
	if !t.connected || t.closed {
		t.violations++
	}
	t.mu.Unlock()

	params := core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{
			MimeType:    opts.Codec.MimeType,
			PayloadType: opts.Codec.PreferredPayloadType,
			ClockRate:   opts.Codec.ClockRate,
		}},
	}
	for i, e := range opts.Encodings {
		params.Encodings = append(params.Encodings, core.RtpEncodingParameters{
			SSRC:       uint32(1000 + i),
			MaxBitrate: e.MaxBitrate,
		})
	}
	if _, err := register(ctx, params); err != nil {
		return nil, err
	}
	p := &Producer{Kind: opts.Track.Kind(), Params: params, CloseErr: t.ProducerCloseErr}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, opts core.ConsumeOptions) (core.ConsumerHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.closed {
		t.violations++
	}
	if t.ConsumeErr != nil {
		if err := t.ConsumeErr(opts); err != nil {
			return nil, err
		}
	}
	c := &Consumer{
		Opts:     opts,
		track:    &RemoteTrack{id: "track-" + opts.ID, kind: opts.Kind},
		CloseErr: t.ConsumerCloseErr,
	}
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.CloseErr
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Violations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.violations
}

func (t *Transport) Producers() []*Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Producer(nil), t.producers...)
}

func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Consumer(nil), t.consumers...)
}

// Engine builds fake transports.
type Engine struct {
	mu         sync.Mutex
	Local      core.RtpCapabilities
	configured *core.RtpCapabilities
	transports []*Transport
	// Prepare customizes each transport before it is returned.
	Prepare func(*Transport)
}

func NewEngine() *Engine {
	return &Engine{Local: LocalCapabilities()}
}

func (e *Engine) LocalCapabilities() core.RtpCapabilities { return e.Local }

func (e *Engine) Configure(negotiated core.RtpCapabilities) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configured = &negotiated
	return nil
}

func (e *Engine) NewTransport(_ context.Context, dir core.Direction, opts core.TransportOptions) (core.Transport, error) {
	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("%s-transport", dir)
	}
	t := &Transport{id: id, dir: dir}
	if e.Prepare != nil {
		e.Prepare(t)
	}
	e.mu.Lock()
	e.transports = append(e.transports, t)
	e.mu.Unlock()
	return t, nil
}

func (e *Engine) Configured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configured != nil
}

func (e *Engine) Transports() []*Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Transport(nil), e.transports...)
}

// Transport returns the most recent transport for dir.
func (e *Engine) Transport(dir core.Direction) *Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.transports) - 1; i >= 0; i-- {
		if e.transports[i].dir == dir {
			return e.transports[i]
		}
	}
	return nil
}
