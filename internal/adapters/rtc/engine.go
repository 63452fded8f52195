// Package rtc implements the media engine on pion's ORTC objects: one ICE
// gatherer, ICE transport and DTLS transport per SFU transport, with RTP
// senders and receivers bound to them.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNotConfigured = errors.New("media engine not configured")

type Config struct {
	ICEServers []webrtc.ICEServer
	// LoggerFactory defaults to a zerolog-backed factory.
	LoggerFactory logging.LoggerFactory
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Engine is a core.MediaEngine. Configure must be called before NewTransport.
type Engine struct {
	cfg Config

	mu         sync.RWMutex
	api        *webrtc.API
	negotiated core.RtpCapabilities
}

func NewEngine(cfg Config) *Engine {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = NewLoggerFactory(log.Logger)
	}
	return &Engine{cfg: cfg}
}

// LocalCapabilities lists what pion can encode and decode.
func (e *Engine) LocalCapabilities() core.RtpCapabilities {
	nack := []core.RtcpFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: "ccm", Parameter: "fir"}}
	return core.RtpCapabilities{
		Codecs: []core.RtpCodecCapability{
			{Kind: core.KindAudio, MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
				Parameters: map[string]any{"minptime": 10, "useinbandfec": 1}},
			{Kind: core.KindVideo, MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, RtcpFeedback: nack},
			{Kind: core.KindVideo, MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, RtcpFeedback: nack,
				Parameters: map[string]any{"profile-id": 0}},
			{Kind: core.KindVideo, MimeType: webrtc.MimeTypeH264, ClockRate: 90000, RtcpFeedback: nack,
				Parameters: map[string]any{"packetization-mode": 1, "profile-level-id": "42e01f", "level-asymmetry-allowed": 1}},
			{Kind: core.KindVideo, MimeType: webrtc.MimeTypeRTX, ClockRate: 90000},
		},
		HeaderExtensions: []core.RtpHeaderExtension{
			{Kind: core.KindAudio, URI: "urn:ietf:params:rtp-hdrext:sdes:mid"},
			{Kind: core.KindVideo, URI: "urn:ietf:params:rtp-hdrext:sdes:mid"},
			{Kind: core.KindAudio, URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level"},
			{Kind: core.KindVideo, URI: "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"},
		},
	}
}

// Configure registers the negotiated codecs under the router's payload
// types and builds the pion API used by every transport.
func (e *Engine) Configure(negotiated core.RtpCapabilities) error {
	m := &webrtc.MediaEngine{}
	for _, c := range negotiated.Codecs {
		if err := m.RegisterCodec(toPionCodec(c), c.Kind.CodecType()); err != nil {
			return fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: e.cfg.LoggerFactory}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	e.mu.Lock()
	e.api = api
	e.negotiated = negotiated
	e.mu.Unlock()
	log.Info().Str("module", "rtc").Int("codecs", len(negotiated.Codecs)).Msg("media engine configured")
	return nil
}

func (e *Engine) NewTransport(_ context.Context, dir core.Direction, opts core.TransportOptions) (core.Transport, error) {
	e.mu.RLock()
	api := e.api
	negotiated := e.negotiated
	e.mu.RUnlock()
	if api == nil {
		return nil, ErrNotConfigured
	}

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: e.cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	return newTransport(api, dir, opts, negotiated, gatherer, ice, dtls), nil
}
