package media

import (
	"testing"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/dkeye/meetclient/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiator_Load(t *testing.T) {
	n := NewNegotiator(coretest.LocalCapabilities())
	require.NoError(t, n.Load(coretest.RouterCapabilities()))

	assert.True(t, n.Loaded())
	assert.True(t, n.CanProduce(core.KindAudio))
	assert.True(t, n.CanProduce(core.KindVideo))

	codec, ok := n.SendCodec(core.KindVideo)
	require.True(t, ok)
	assert.Equal(t, "video/VP8", codec.MimeType)
	assert.EqualValues(t, 101, codec.PreferredPayloadType)

	recv := n.RecvCapabilities()
	require.Len(t, recv.Codecs, 3, "opus, vp8 and its rtx")
	assert.Equal(t, "video/rtx", recv.Codecs[2].MimeType)
	require.Len(t, recv.HeaderExtensions, 2, "video-orientation is not supported locally")

	require.ErrorIs(t, n.Load(coretest.RouterCapabilities()), ErrAlreadyLoaded)
}

func TestNegotiator_Unsupported(t *testing.T) {
	n := NewNegotiator(coretest.LocalCapabilities())
	remote := core.RtpCapabilities{Codecs: []core.RtpCodecCapability{
		{Kind: core.KindAudio, MimeType: "audio/G722", ClockRate: 8000},
		{Kind: core.KindVideo, MimeType: "video/AV1", ClockRate: 90000},
	}}
	err := n.Load(remote)
	require.ErrorIs(t, err, core.ErrUnsupportedCapabilities)
	assert.False(t, n.Loaded())
	assert.False(t, n.CanProduce(core.KindAudio))
}

func TestNegotiator_PartialKinds(t *testing.T) {
	n := NewNegotiator(coretest.LocalCapabilities())
	require.NoError(t, n.Load(coretest.AudioOnlyRouterCapabilities()))
	assert.True(t, n.CanProduce(core.KindAudio))
	assert.False(t, n.CanProduce(core.KindVideo))
	_, ok := n.SendCodec(core.KindVideo)
	assert.False(t, ok)
}

func TestCodecsMatch(t *testing.T) {
	h264 := func(mode any) core.RtpCodecCapability {
		return core.RtpCodecCapability{
			Kind: core.KindVideo, MimeType: "video/H264", ClockRate: 90000,
			Parameters: map[string]any{"packetization-mode": mode},
		}
	}
	tests := []struct {
		name string
		a, b core.RtpCodecCapability
		want bool
	}{
		{
			name: "mime case-insensitive",
			a:    core.RtpCodecCapability{Kind: core.KindVideo, MimeType: "video/vp8", ClockRate: 90000},
			b:    core.RtpCodecCapability{Kind: core.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
			want: true,
		},
		{
			name: "clock rate differs",
			a:    core.RtpCodecCapability{Kind: core.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			b:    core.RtpCodecCapability{Kind: core.KindAudio, MimeType: "audio/opus", ClockRate: 16000, Channels: 2},
			want: false,
		},
		{
			name: "channels differ",
			a:    core.RtpCodecCapability{Kind: core.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			b:    core.RtpCodecCapability{Kind: core.KindAudio, MimeType: "audio/opus", ClockRate: 48000},
			want: false,
		},
		{name: "h264 same mode, string vs number", a: h264("1"), b: h264(float64(1)), want: true},
		{name: "h264 mode differs", a: h264("1"), b: h264(float64(0)), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codecsMatch(tt.a, tt.b))
		})
	}
}
