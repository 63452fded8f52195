package rtc

import (
	"bytes"
	"context"
	"testing"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routerCaps() core.RtpCapabilities {
	return core.RtpCapabilities{Codecs: []core.RtpCodecCapability{
		{Kind: core.KindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
		{Kind: core.KindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
		{Kind: core.KindVideo, MimeType: "video/rtx", PreferredPayloadType: 102, ClockRate: 90000,
			Parameters: map[string]any{"apt": float64(101)}},
	}}
}

func TestEngine_LocalCapabilities(t *testing.T) {
	caps := NewEngine(Config{}).LocalCapabilities()
	kinds := map[core.MediaKind]int{}
	for _, c := range caps.Codecs {
		kinds[c.Kind]++
	}
	assert.Equal(t, 1, kinds[core.KindAudio])
	assert.Equal(t, 4, kinds[core.KindVideo])
}

func TestEngine_RequiresConfigure(t *testing.T) {
	e := NewEngine(Config{})
	_, err := e.NewTransport(context.Background(), core.DirectionSend, core.TransportOptions{ID: "t-1"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestEngine_TransportLifecycle(t *testing.T) {
	e := NewEngine(Config{LoggerFactory: NewLoggerFactory(zerolog.Nop())})
	require.NoError(t, e.Configure(routerCaps()))

	tr, err := e.NewTransport(context.Background(), core.DirectionRecv, core.TransportOptions{ID: "t-recv"})
	require.NoError(t, err)
	assert.Equal(t, "t-recv", tr.ID())
	assert.Equal(t, core.DirectionRecv, tr.Direction())

	_, err = tr.Consume(context.Background(), core.ConsumeOptions{ID: "c-1", Kind: core.KindAudio})
	require.ErrorIs(t, err, errNotConnected)

	err = tr.Connect(context.Background())
	require.ErrorIs(t, err, errNoConnectHandler)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
}

func TestTransport_SimulcastSenderLayers(t *testing.T) {
	e := NewEngine(Config{LoggerFactory: NewLoggerFactory(zerolog.Nop())})
	require.NoError(t, e.Configure(routerCaps()))
	tr, err := e.NewTransport(context.Background(), core.DirectionSend, core.TransportOptions{ID: "t-send"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	var layers []webrtc.TrackLocal
	for _, rid := range []string{"r0", "r1", "r2"} {
		l, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", "stream", webrtc.WithRTPStreamID(rid))
		require.NoError(t, err)
		layers = append(layers, l)
	}

	sender, err := tr.(*Transport).newSender(layers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sender.Stop() })

	sent := sendLayers(sender.GetParameters())
	require.Len(t, sent, 3)
	seen := map[uint32]bool{}
	for _, l := range sent {
		seen[l.ssrc] = true
	}
	assert.Len(t, seen, 3, "every layer has its own ssrc")

	params := produceParameters(produceLayout{codec: routerCaps().Codecs[1], layers: sent}, videoCeilings)
	require.Len(t, params.Encodings, 3)
	for i, enc := range params.Encodings {
		assert.Equal(t, sent[i].ssrc, enc.SSRC)
		assert.Equal(t, videoCeilings[i].MaxBitrate, enc.MaxBitrate)
	}
}

func TestTransport_SenderRejectsUnlabelledLayer(t *testing.T) {
	e := NewEngine(Config{LoggerFactory: NewLoggerFactory(zerolog.Nop())})
	require.NoError(t, e.Configure(routerCaps()))
	tr, err := e.NewTransport(context.Background(), core.DirectionSend, core.TransportOptions{ID: "t-send"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	base, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "stream")
	require.NoError(t, err)
	extra, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "stream")
	require.NoError(t, err)

	_, err = tr.(*Transport).newSender([]webrtc.TrackLocal{base, extra})
	require.Error(t, err)
}

func TestLoggerFactory(t *testing.T) {
	var buf bytes.Buffer
	var f logging.LoggerFactory = NewLoggerFactory(zerolog.New(&buf))
	l := f.NewLogger("ice")
	l.Warnf("candidate %d failed", 3)
	l.Info("gathering")

	out := buf.String()
	assert.Contains(t, out, `"scope":"ice"`)
	assert.Contains(t, out, "candidate 3 failed")
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "gathering")
}
