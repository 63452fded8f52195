package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/rs/zerolog/log"
)

type TransportState int

const (
	TransportUnconnected TransportState = iota
	TransportConnecting
	TransportConnected
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportUnconnected:
		return "unconnected"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

type Timeouts struct {
	Request         time.Duration
	CreateTransport time.Duration
	// Connect bounds the whole handshake: ICE gathering, the connect
	// request and ICE/DTLS establishment.
	Connect time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Request: 5 * time.Second, CreateTransport: 10 * time.Second, Connect: 15 * time.Second}
}

// DefaultSimulcast holds the low/medium/high video bitrate ceilings.
var DefaultSimulcast = []uint64{100_000, 300_000, 900_000}

type Options struct {
	MeetingID string
	Timeouts  Timeouts
	// Simulcast lists one bitrate ceiling per video layer.
	Simulcast []uint64
}

type managedTransport struct {
	t            core.Transport
	state        TransportState
	connectCalls int
}

// Producer is a local outbound stream bound to the send transport.
type Producer struct {
	ID     string
	Kind   core.MediaKind
	Paused bool
	handle core.ProducerHandle
}

// Consumer is a remote inbound stream bound to the recv transport.
type Consumer struct {
	ID            string
	ProducerID    string
	ParticipantID string
	Kind          core.MediaKind
	handle        core.ConsumerHandle
}

func (c *Consumer) Track() core.RemoteTrack { return c.handle.Track() }

// TransportManager owns the send/recv transports and every producer and
// consumer layered on them. It is not safe for concurrent use; the
// orchestrator's loop is its only caller.
type TransportManager struct {
	signal core.SignalChannel
	engine core.MediaEngine
	neg    *Negotiator
	opts   Options

	transports map[core.Direction]*managedTransport
	producers  map[core.MediaKind]*Producer
	consumers  map[string]*Consumer
}

func NewTransportManager(signal core.SignalChannel, engine core.MediaEngine, neg *Negotiator, opts Options) *TransportManager {
	if opts.Timeouts.Request == 0 {
		opts.Timeouts.Request = DefaultTimeouts().Request
	}
	if opts.Timeouts.CreateTransport == 0 {
		opts.Timeouts.CreateTransport = DefaultTimeouts().CreateTransport
	}
	if opts.Timeouts.Connect == 0 {
		opts.Timeouts.Connect = DefaultTimeouts().Connect
	}
	if len(opts.Simulcast) == 0 {
		opts.Simulcast = DefaultSimulcast
	}
	return &TransportManager{
		signal:     signal,
		engine:     engine,
		neg:        neg,
		opts:       opts,
		transports: make(map[core.Direction]*managedTransport),
		producers:  make(map[core.MediaKind]*Producer),
		consumers:  make(map[string]*Consumer),
	}
}

func (m *TransportManager) State(dir core.Direction) TransportState {
	mt, ok := m.transports[dir]
	if !ok {
		return TransportClosed
	}
	return mt.state
}

// CreateTransport requests server parameters for dir and builds the local
// transport in the unconnected state.
func (m *TransportManager) CreateTransport(ctx context.Context, dir core.Direction) error {
	if mt, ok := m.transports[dir]; ok && mt.state != TransportClosed {
		return fmt.Errorf("%w: %s", core.ErrTransportExists, dir)
	}

	var params core.TransportOptions
	req := core.CreateTransportRequest{MeetingID: m.opts.MeetingID, Direction: dir}
	if err := m.signal.Request(ctx, core.EventCreateWebRtcTransport, req, m.opts.Timeouts.CreateTransport, &params); err != nil {
		return fmt.Errorf("create %s transport: %w", dir, err)
	}
	t, err := m.engine.NewTransport(ctx, dir, params)
	if err != nil {
		return fmt.Errorf("build %s transport: %w", dir, err)
	}

	mt := &managedTransport{t: t, state: TransportUnconnected}
	t.OnConnect(func(ctx context.Context, local core.DtlsParameters) error {
		mt.connectCalls++
		if mt.connectCalls > 1 {
			return fmt.Errorf("%s transport connect requested twice", dir)
		}
		req := core.ConnectTransportRequest{
			MeetingID:      m.opts.MeetingID,
			TransportID:    t.ID(),
			DtlsParameters: local,
		}
		return m.signal.Request(ctx, core.EventConnectTransport, req, m.opts.Timeouts.Request, nil)
	})
	m.transports[dir] = mt

	log.Info().Str("module", "media.transports").Str("dir", string(dir)).Str("transport_id", t.ID()).Msg("transport created")
	return nil
}

// ConnectTransport runs the connect handshake of dir exactly once.
func (m *TransportManager) ConnectTransport(ctx context.Context, dir core.Direction) error {
	mt, ok := m.transports[dir]
	if !ok || mt.state == TransportClosed {
		return fmt.Errorf("%w: no %s transport", core.ErrTransportConnect, dir)
	}
	if mt.state == TransportConnected {
		return nil
	}
	if mt.state != TransportUnconnected {
		return fmt.Errorf("%w: %s transport is %s", core.ErrTransportConnect, dir, mt.state)
	}

	mt.state = TransportConnecting
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeouts.Connect)
	defer cancel()
	if err := mt.t.Connect(ctx); err != nil {
		mt.state = TransportClosed
		if cerr := mt.t.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("module", "media.transports").Str("dir", string(dir)).Msg("close after failed connect")
		}
		return fmt.Errorf("%w: %s: %w", core.ErrTransportConnect, dir, err)
	}
	mt.state = TransportConnected
	log.Info().Str("module", "media.transports").Str("dir", string(dir)).Msg("transport connected")
	return nil
}

func (m *TransportManager) connected(dir core.Direction) (*managedTransport, error) {
	mt, ok := m.transports[dir]
	if !ok || mt.state != TransportConnected {
		return nil, fmt.Errorf("%w: %s", core.ErrTransportNotConnected, dir)
	}
	return mt, nil
}

func (m *TransportManager) encodings(kind core.MediaKind) []core.Encoding {
	if kind != core.KindVideo {
		return []core.Encoding{{}}
	}
	out := make([]core.Encoding, 0, len(m.opts.Simulcast))
	for _, br := range m.opts.Simulcast {
		out = append(out, core.Encoding{MaxBitrate: br, ScalabilityMode: "S1T3"})
	}
	return out
}

// Produce publishes track on the send transport.
func (m *TransportManager) Produce(ctx context.Context, track core.LocalTrack) (*Producer, error) {
	kind := track.Kind()
	mt, err := m.connected(core.DirectionSend)
	if err != nil {
		return nil, err
	}
	if !m.neg.CanProduce(kind) {
		return nil, fmt.Errorf("%w: %s", core.ErrCannotProduce, kind)
	}
	if p, ok := m.producers[kind]; ok {
		return p, nil
	}
	codec, _ := m.neg.SendCodec(kind)

	opts := core.ProduceOptions{Track: track, Codec: codec, Encodings: m.encodings(kind)}
	var producerID string
	handle, err := mt.t.Produce(ctx, opts, func(ctx context.Context, params core.RtpParameters) (string, error) {
		var resp core.ProduceResponse
		req := core.ProduceRequest{
			MeetingID:     m.opts.MeetingID,
			TransportID:   mt.t.ID(),
			Kind:          kind,
			RtpParameters: params,
		}
		if err := m.signal.Request(ctx, core.EventProduce, req, m.opts.Timeouts.Request, &resp); err != nil {
			return "", err
		}
		producerID = resp.ID
		return resp.ID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("produce %s: %w", kind, err)
	}

	p := &Producer{ID: producerID, Kind: kind, handle: handle}
	m.producers[kind] = p
	log.Info().Str("module", "media.transports").Str("kind", string(kind)).Str("producer_id", p.ID).Int("layers", len(opts.Encodings)).Msg("producing")
	return p, nil
}

// SetProducerPaused is a no-op when the producer is already in that state.
func (m *TransportManager) SetProducerPaused(kind core.MediaKind, paused bool) error {
	p, ok := m.producers[kind]
	if !ok || p.Paused == paused {
		return nil
	}
	var err error
	if paused {
		err = p.handle.Pause()
	} else {
		err = p.handle.Resume()
	}
	if err != nil {
		return fmt.Errorf("set %s producer paused=%t: %w", kind, paused, err)
	}
	p.Paused = paused
	return nil
}

func (m *TransportManager) Producer(kind core.MediaKind) (*Producer, bool) {
	p, ok := m.producers[kind]
	return p, ok
}

// Consume receives producerID on the recv transport and resumes it.
func (m *TransportManager) Consume(ctx context.Context, participantID, producerID string, kind core.MediaKind) (*Consumer, error) {
	mt, err := m.connected(core.DirectionRecv)
	if err != nil {
		return nil, err
	}
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("consume %s: %w %q", producerID, core.ErrInvalidKind, kind)
	}

	var resp core.ConsumeResponse
	req := core.ConsumeRequest{
		MeetingID:       m.opts.MeetingID,
		ProducerID:      producerID,
		RtpCapabilities: m.neg.RecvCapabilities(),
	}
	if err := m.signal.Request(ctx, core.EventConsume, req, m.opts.Timeouts.Request, &resp); err != nil {
		return nil, fmt.Errorf("consume %s: %w", producerID, err)
	}
	if resp.Kind == "" {
		resp.Kind = kind
	}
	if resp.ProducerID == "" {
		resp.ProducerID = producerID
	}
	if !resp.Kind.Valid() {
		return nil, fmt.Errorf("consume %s: %w %q", producerID, core.ErrInvalidKind, resp.Kind)
	}

	handle, err := mt.t.Consume(ctx, core.ConsumeOptions{
		ID:            resp.ID,
		ProducerID:    resp.ProducerID,
		Kind:          resp.Kind,
		RtpParameters: resp.RtpParameters,
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", producerID, err)
	}
	// Server-side consumers start paused.
	if err := handle.Resume(); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("resume consumer %s: %w", resp.ID, err)
	}

	c := &Consumer{
		ID:            resp.ID,
		ProducerID:    resp.ProducerID,
		ParticipantID: participantID,
		Kind:          resp.Kind,
		handle:        handle,
	}
	m.consumers[c.ID] = c
	log.Info().Str("module", "media.transports").Str("participant", participantID).Str("kind", string(c.Kind)).Str("consumer_id", c.ID).Msg("consuming")
	return c, nil
}

// ConsumingProducer reports whether producerID already has a consumer.
func (m *TransportManager) ConsumingProducer(producerID string) bool {
	for _, c := range m.consumers {
		if c.ProducerID == producerID {
			return true
		}
	}
	return false
}

func (m *TransportManager) CloseConsumer(id string) error {
	c, ok := m.consumers[id]
	if !ok {
		return nil
	}
	delete(m.consumers, id)
	if err := c.handle.Close(); err != nil {
		return fmt.Errorf("close consumer %s: %w", id, err)
	}
	return nil
}

// CloseProducers attempts every close and reports all failures.
func (m *TransportManager) CloseProducers() error {
	var errs []error
	for kind, p := range m.producers {
		delete(m.producers, kind)
		if err := p.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s producer: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

func (m *TransportManager) CloseConsumers() error {
	var errs []error
	for id := range m.consumers {
		if err := m.CloseConsumer(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *TransportManager) CloseTransports() error {
	var errs []error
	for dir, mt := range m.transports {
		if mt.state == TransportClosed {
			continue
		}
		mt.state = TransportClosed
		if err := mt.t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s transport: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

func (m *TransportManager) OpenTransports() int {
	n := 0
	for _, mt := range m.transports {
		if mt.state != TransportClosed {
			n++
		}
	}
	return n
}

func (m *TransportManager) OpenProducers() int { return len(m.producers) }

func (m *TransportManager) OpenConsumers() int { return len(m.consumers) }
