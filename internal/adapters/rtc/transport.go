package rtc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errNoConnectHandler = errors.New("no connect handler")
	errNotConnected     = errors.New("transport not connected")
)

// Transport is one SFU transport: an ICE+DTLS pair plus the senders or
// receivers layered on it.
type Transport struct {
	api        *webrtc.API
	id         string
	dir        core.Direction
	remote     core.TransportOptions
	negotiated core.RtpCapabilities
	cname      string
	logger     zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	onConnect core.ConnectHandler
	connected bool
	closed    bool
	mids      int
	senders   []*webrtc.RTPSender
	receivers []*webrtc.RTPReceiver
}

func newTransport(api *webrtc.API, dir core.Direction, remote core.TransportOptions, negotiated core.RtpCapabilities,
	gatherer *webrtc.ICEGatherer, ice *webrtc.ICETransport, dtls *webrtc.DTLSTransport,
) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		api:        api,
		id:         remote.ID,
		dir:        dir,
		remote:     remote,
		negotiated: negotiated,
		cname:      uuid.NewString(),
		logger:     log.With().Str("module", "rtc").Str("dir", string(dir)).Str("transport_id", remote.ID).Logger(),
		gatherer:   gatherer,
		ice:        ice,
		dtls:       dtls,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (t *Transport) ID() string                { return t.id }
func (t *Transport) Direction() core.Direction { return t.dir }

func (t *Transport) OnConnect(h core.ConnectHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = h
}

// Connect gathers local candidates, hands the local DTLS parameters to the
// connect handler and then starts ICE (controlling) and DTLS (client).
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	h := t.onConnect
	t.onConnect = nil
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("%s transport closed", t.dir)
	}
	if h == nil {
		return errNoConnectHandler
	}

	if err := t.gather(ctx); err != nil {
		return err
	}
	local, err := t.dtls.GetLocalParameters()
	if err != nil {
		return fmt.Errorf("local dtls parameters: %w", err)
	}
	if err := h(ctx, core.DtlsParameters{Role: core.DtlsRoleClient, Fingerprints: fromPionFingerprints(local.Fingerprints)}); err != nil {
		return err
	}

	cands, err := toPionCandidates(t.remote.IceCandidates)
	if err != nil {
		return err
	}
	if err := t.ice.SetRemoteCandidates(cands); err != nil {
		return fmt.Errorf("remote candidates: %w", err)
	}
	remoteDTLS := t.remote.DtlsParameters
	remoteDTLS.Role = core.DtlsRoleServer

	err = t.blocking(ctx, func() error {
		role := webrtc.ICERoleControlling
		if err := t.ice.Start(nil, toPionICEParameters(t.remote.IceParameters), &role); err != nil {
			return fmt.Errorf("ice start: %w", err)
		}
		if err := t.dtls.Start(toPionDTLS(remoteDTLS)); err != nil {
			return fmt.Errorf("dtls start: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.logger.Info().Msg("ice and dtls connected")
	return nil
}

func (t *Transport) gather(ctx context.Context) error {
	complete := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(complete) })
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		return fmt.Errorf("ice gather: %w", err)
	}
	select {
	case <-complete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// blocking runs fn, which cannot be cancelled itself; when ctx ends first
// the transport is closed to unblock it.
func (t *Transport) blocking(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	go func() { errc <- fn() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		_ = t.Close()
		<-errc
		return ctx.Err()
	}
}

func (t *Transport) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

func (t *Transport) nextMid() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	mid := strconv.Itoa(t.mids)
	t.mids++
	return mid
}

func (t *Transport) Produce(ctx context.Context, opts core.ProduceOptions, register core.ProduceHandler) (core.ProducerHandle, error) {
	if !t.isConnected() {
		return nil, errNotConnected
	}
	layers := localLayers(opts.Track)
	if len(layers) == 0 {
		return nil, fmt.Errorf("%s track has no media", opts.Track.Kind())
	}
	// Checked before the server learns about the producer: pion refuses
	// to bind a track whose codec is not registered.
	codec, err := sendCodecFor(t.negotiated, layers[0], opts.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCannotProduce, err)
	}
	sender, err := t.newSender(layers)
	if err != nil {
		return nil, err
	}
	send := sender.GetParameters()

	layout := produceLayout{mid: t.nextMid(), cname: t.cname, codec: codec, layers: sendLayers(send)}
	if rtx, ok := rtxFor(t.negotiated, codec.PreferredPayloadType); ok {
		layout.rtx = &rtx
	}
	params := produceParameters(layout, opts.Encodings)

	id, err := register(ctx, params)
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}
	if err := sender.Send(send); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("rtp send: %w", err)
	}
	go drainRTCP(sender)

	t.mu.Lock()
	t.senders = append(t.senders, sender)
	t.mu.Unlock()
	t.logger.Info().Str("producer_id", id).Str("codec", codec.MimeType).Int("layers", len(layout.layers)).Msg("rtp sender started")
	return &producer{id: id, kind: opts.Track.Kind(), sender: sender, logger: t.logger}, nil
}

// newSender builds an RTP sender with one encoding per layer.
func (t *Transport) newSender(layers []webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := t.api.NewRTPSender(layers[0], t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	for _, l := range layers[1:] {
		if err := sender.AddEncoding(l); err != nil {
			_ = sender.Stop()
			return nil, fmt.Errorf("simulcast layer %s: %w", l.RID(), err)
		}
	}
	return sender, nil
}

// localLayers returns the simulcast layers of track, or the track itself.
func localLayers(track core.LocalTrack) []webrtc.TrackLocal {
	if lt, ok := track.(core.LayeredTrack); ok {
		if layers := lt.Layers(); len(layers) > 1 {
			return layers
		}
	}
	if tl := track.TrackLocal(); tl != nil {
		return []webrtc.TrackLocal{tl}
	}
	return nil
}

// drainRTCP keeps interceptors (nack, reports) fed until the sender stops.
func drainRTCP(sender *webrtc.RTPSender) {
	for {
		if _, _, err := sender.ReadRTCP(); err != nil {
			return
		}
	}
}

func (t *Transport) Consume(_ context.Context, opts core.ConsumeOptions) (core.ConsumerHandle, error) {
	if !t.isConnected() {
		return nil, errNotConnected
	}
	params, err := receiveParameters(opts.RtpParameters)
	if err != nil {
		return nil, err
	}
	receiver, err := t.api.NewRTPReceiver(opts.Kind.CodecType(), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	if err := receiver.Receive(params); err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("rtp receive: %w", err)
	}
	remote := receiver.Track()
	if remote == nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("receiver for %s has no track", opts.ID)
	}

	t.mu.Lock()
	t.receivers = append(t.receivers, receiver)
	t.mu.Unlock()
	return &consumer{
		id:       opts.ID,
		kind:     opts.Kind,
		ssrc:     uint32(remote.SSRC()),
		receiver: receiver,
		sink:     NewSink(opts.ID, opts.Kind, remote),
		rtcp:     t.dtls,
		ctx:      t.ctx,
		logger:   t.logger.With().Str("consumer_id", opts.ID).Logger(),
	}, nil
}

// Close stops every sender and receiver, then DTLS, ICE and the gatherer.
// Every step is attempted.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	senders, receivers := t.senders, t.receivers
	t.senders, t.receivers = nil, nil
	t.mu.Unlock()
	t.cancel()

	var errs []error
	for _, s := range senders {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range receivers {
		if err := r.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.dtls.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("dtls stop: %w", err))
	}
	if err := t.ice.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("ice stop: %w", err))
	}
	if err := t.gatherer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("gatherer close: %w", err))
	}
	t.logger.Info().Msg("transport closed")
	return errors.Join(errs...)
}

type producer struct {
	id     string
	kind   core.MediaKind
	sender *webrtc.RTPSender
	paused atomic.Bool
	logger zerolog.Logger
}

// Pause stops announcing media; the capture track is muted by its owner.
func (p *producer) Pause() error {
	if !p.paused.CompareAndSwap(false, true) {
		return fmt.Errorf("producer %s already paused", p.id)
	}
	p.logger.Debug().Str("producer_id", p.id).Msg("producer paused")
	return nil
}

func (p *producer) Resume() error {
	if !p.paused.CompareAndSwap(true, false) {
		return fmt.Errorf("producer %s not paused", p.id)
	}
	p.logger.Debug().Str("producer_id", p.id).Msg("producer resumed")
	return nil
}

func (p *producer) Close() error {
	return p.sender.Stop()
}

type rtcpWriter interface {
	WriteRTCP([]rtcp.Packet) (int, error)
}

type consumer struct {
	id       string
	kind     core.MediaKind
	ssrc     uint32
	receiver *webrtc.RTPReceiver
	sink     *Sink
	rtcp     rtcpWriter
	ctx      context.Context
	logger   zerolog.Logger
}

func (c *consumer) Track() core.RemoteTrack { return c.sink }

// Resume starts draining and asks the sender for a keyframe on video.
func (c *consumer) Resume() error {
	if !c.sink.Start(c.ctx, c.logger) {
		return nil
	}
	if c.kind == core.KindVideo {
		if _, err := c.rtcp.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: c.ssrc}}); err != nil {
			c.logger.Warn().Err(err).Msg("keyframe request")
		}
	}
	return nil
}

func (c *consumer) Close() error {
	c.sink.Stop()
	return c.receiver.Stop()
}
