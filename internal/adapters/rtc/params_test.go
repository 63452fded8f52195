package rtc

import (
	"testing"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFmtpLine(t *testing.T) {
	assert.Empty(t, fmtpLine(nil))
	assert.Equal(t,
		"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		fmtpLine(map[string]any{
			"profile-level-id":        "42e01f",
			"packetization-mode":      float64(1),
			"level-asymmetry-allowed": 1,
		}))
	assert.Equal(t, "x=0.5", fmtpLine(map[string]any{"x": 0.5}))
}

func TestToPionCodec(t *testing.T) {
	c := toPionCodec(core.RtpCodecCapability{
		Kind:                 core.KindVideo,
		MimeType:             "video/rtx",
		PreferredPayloadType: 102,
		ClockRate:            90000,
		Parameters:           map[string]any{"apt": float64(101)},
		RtcpFeedback:         []core.RtcpFeedback{{Type: "nack", Parameter: "pli"}},
	})
	assert.Equal(t, webrtc.PayloadType(102), c.PayloadType)
	assert.Equal(t, "apt=101", c.SDPFmtpLine)
	assert.Equal(t, []webrtc.RTCPFeedback{{Type: "nack", Parameter: "pli"}}, c.RTCPFeedback)
}

func TestToPionCandidates(t *testing.T) {
	cands, err := toPionCandidates([]core.IceCandidate{
		{Foundation: "udpcandidate", Priority: 1076302079, IP: "203.0.113.7", Protocol: "udp", Port: 40000, Type: "host"},
		{Foundation: "tcpcandidate", Priority: 1076276479, Address: "203.0.113.7", Protocol: "TCP", Port: 40001, Type: "host", TCPType: "passive"},
	})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "203.0.113.7", cands[0].Address)
	assert.Equal(t, webrtc.ICEProtocolUDP, cands[0].Protocol)
	assert.Equal(t, webrtc.ICECandidateTypeHost, cands[0].Typ)
	assert.Equal(t, webrtc.ICEProtocolTCP, cands[1].Protocol)
	assert.Equal(t, "passive", cands[1].TCPType)

	_, err = toPionCandidates([]core.IceCandidate{{Protocol: "sctp", Type: "host"}})
	require.Error(t, err)
}

func TestDTLSConversion(t *testing.T) {
	p := toPionDTLS(core.DtlsParameters{
		Role:         core.DtlsRoleServer,
		Fingerprints: []core.DtlsFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}},
	})
	assert.Equal(t, webrtc.DTLSRoleServer, p.Role)
	require.Len(t, p.Fingerprints, 1)

	back := fromPionFingerprints(p.Fingerprints)
	assert.Equal(t, []core.DtlsFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}}, back)
	assert.Equal(t, webrtc.DTLSRoleAuto, toPionDTLS(core.DtlsParameters{}).Role)
}

func negotiatedVideo() core.RtpCapabilities {
	return core.RtpCapabilities{Codecs: []core.RtpCodecCapability{
		{Kind: core.KindVideo, MimeType: "video/H264", PreferredPayloadType: 107, ClockRate: 90000},
		{Kind: core.KindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
		{Kind: core.KindVideo, MimeType: "video/rtx", PreferredPayloadType: 102, ClockRate: 90000,
			Parameters: map[string]any{"apt": float64(101)}},
	}}
}

func TestRtxFor(t *testing.T) {
	rtx, ok := rtxFor(negotiatedVideo(), 101)
	require.True(t, ok)
	assert.Equal(t, uint8(102), rtx.PreferredPayloadType)

	_, ok = rtxFor(negotiatedVideo(), 107)
	assert.False(t, ok)
}

func TestSendCodecFor(t *testing.T) {
	neg := negotiatedVideo()
	preferred := neg.Codecs[0]
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "s")
	require.NoError(t, err)

	got, err := sendCodecFor(neg, track, preferred)
	require.NoError(t, err)
	assert.Equal(t, uint8(101), got.PreferredPayloadType, "codec follows what the track encodes")
}

func TestSendCodecFor_NotNegotiated(t *testing.T) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeAV1}, "video", "s")
	require.NoError(t, err)

	_, err = sendCodecFor(negotiatedVideo(), track, negotiatedVideo().Codecs[0])
	require.ErrorIs(t, err, errCodecNotNegotiated)
}

var videoCeilings = []core.Encoding{
	{MaxBitrate: 100_000, ScalabilityMode: "S1T3"},
	{MaxBitrate: 300_000, ScalabilityMode: "S1T3"},
	{MaxBitrate: 900_000, ScalabilityMode: "S1T3"},
}

func TestProduceParameters_Simulcast(t *testing.T) {
	neg := negotiatedVideo()
	rtx := neg.Codecs[2]
	params := produceParameters(produceLayout{
		mid:   "0",
		cname: "cname-1",
		codec: neg.Codecs[1],
		rtx:   &rtx,
		layers: []sendLayer{
			{ssrc: 5000, rtxSSRC: 6000},
			{ssrc: 7123, rtxSSRC: 8123},
			{ssrc: 9456, rtxSSRC: 10456},
		},
	}, videoCeilings)

	assert.Equal(t, "0", params.Mid)
	assert.Equal(t, core.RtcpParameters{CNAME: "cname-1", ReducedSize: true}, params.Rtcp)
	require.Len(t, params.Codecs, 2)
	assert.Equal(t, uint8(101), params.Codecs[0].PayloadType)
	assert.Equal(t, "video/rtx", params.Codecs[1].MimeType)

	require.Len(t, params.Encodings, 3)
	assert.Equal(t, uint32(5000), params.Encodings[0].SSRC)
	assert.Equal(t, uint64(100_000), params.Encodings[0].MaxBitrate)
	assert.Equal(t, uint32(9456), params.Encodings[2].SSRC, "each layer keeps the ssrc pion sends it on")
	assert.Equal(t, uint64(900_000), params.Encodings[2].MaxBitrate)
	require.NotNil(t, params.Encodings[1].Rtx)
	assert.Equal(t, uint32(8123), params.Encodings[1].Rtx.SSRC)
}

func TestProduceParameters_SingleLayerVideo(t *testing.T) {
	neg := negotiatedVideo()
	params := produceParameters(produceLayout{
		codec:  neg.Codecs[1],
		layers: []sendLayer{{ssrc: 5000}},
	}, videoCeilings)

	require.Len(t, params.Encodings, 1, "only encodings that carry media are announced")
	assert.Equal(t, uint32(5000), params.Encodings[0].SSRC)
	assert.Equal(t, uint64(900_000), params.Encodings[0].MaxBitrate)
	assert.Nil(t, params.Encodings[0].Rtx)
}

func TestProduceParameters_Audio(t *testing.T) {
	params := produceParameters(produceLayout{
		codec:  core.RtpCodecCapability{Kind: core.KindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
		layers: []sendLayer{{ssrc: 42}},
	}, []core.Encoding{{}})
	require.Len(t, params.Encodings, 1)
	assert.Equal(t, uint32(42), params.Encodings[0].SSRC)
	assert.Nil(t, params.Encodings[0].Rtx)
	assert.Equal(t, uint16(2), params.Codecs[0].Channels)
}

func TestReceiveParameters(t *testing.T) {
	p, err := receiveParameters(core.RtpParameters{
		Codecs:    []core.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000}},
		Encodings: []core.RtpEncodingParameters{{SSRC: 777, Rtx: &core.RtxParameters{SSRC: 778}}},
	})
	require.NoError(t, err)
	require.Len(t, p.Encodings, 1)
	assert.Equal(t, webrtc.SSRC(777), p.Encodings[0].SSRC)
	assert.Equal(t, webrtc.PayloadType(101), p.Encodings[0].PayloadType)
	assert.Equal(t, webrtc.SSRC(778), p.Encodings[0].RTX.SSRC)

	_, err = receiveParameters(core.RtpParameters{Codecs: []core.RtpCodecParameters{{PayloadType: 100}}})
	require.Error(t, err)
	_, err = receiveParameters(core.RtpParameters{Encodings: []core.RtpEncodingParameters{{SSRC: 1}}})
	require.Error(t, err)
}
