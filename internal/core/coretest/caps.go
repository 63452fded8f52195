package coretest

import "github.com/dkeye/meetclient/internal/core"

// LocalCapabilities mirrors what the pion engine advertises.
func LocalCapabilities() core.RtpCapabilities {
	return core.RtpCapabilities{
		Codecs: []core.RtpCodecCapability{
			{Kind: core.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
			{Kind: core.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
			{Kind: core.KindVideo, MimeType: "video/rtx", ClockRate: 90000},
		},
		HeaderExtensions: []core.RtpHeaderExtension{
			{Kind: core.KindAudio, URI: "urn:ietf:params:rtp-hdrext:sdes:mid"},
			{Kind: core.KindVideo, URI: "urn:ietf:params:rtp-hdrext:sdes:mid"},
		},
	}
}

// RouterCapabilities is a typical router capability set.
func RouterCapabilities() core.RtpCapabilities {
	return core.RtpCapabilities{
		Codecs: []core.RtpCodecCapability{
			{Kind: core.KindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
			{Kind: core.KindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
			{Kind: core.KindVideo, MimeType: "video/rtx", PreferredPayloadType: 102, ClockRate: 90000,
				Parameters: map[string]any{"apt": float64(101)}},
		},
		HeaderExtensions: []core.RtpHeaderExtension{
			{Kind: core.KindAudio, URI: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredID: 1},
			{Kind: core.KindVideo, URI: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredID: 1},
			{Kind: core.KindVideo, URI: "urn:3gpp:video-orientation", PreferredID: 4},
		},
	}
}

// AudioOnlyRouterCapabilities offers no video codec.
func AudioOnlyRouterCapabilities() core.RtpCapabilities {
	c := RouterCapabilities()
	c.Codecs = c.Codecs[:1]
	return c
}
