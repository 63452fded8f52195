package rtc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/webrtc/v4"
)

// fmtpLine renders mediasoup codec parameters as an SDP fmtp line with
// keys in sorted order.
func fmtpLine(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+paramValue(params[k]))
	}
	return strings.Join(parts, ";")
}

func paramValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	default:
		return fmt.Sprint(x)
	}
}

func toPionFeedback(fb []core.RtcpFeedback) []webrtc.RTCPFeedback {
	out := make([]webrtc.RTCPFeedback, 0, len(fb))
	for _, f := range fb {
		out = append(out, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return out
}

func toPionCodec(c core.RtpCodecCapability) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  fmtpLine(c.Parameters),
			RTCPFeedback: toPionFeedback(c.RtcpFeedback),
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

func toCodecParameters(c core.RtpCodecCapability) core.RtpCodecParameters {
	return core.RtpCodecParameters{
		MimeType:     c.MimeType,
		PayloadType:  c.PreferredPayloadType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		Parameters:   c.Parameters,
		RtcpFeedback: c.RtcpFeedback,
	}
}

func toPionICEParameters(p core.IceParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.IceLite,
	}
}

func toPionCandidates(cands []core.IceCandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(cands))
	for _, c := range cands {
		proto, err := webrtc.NewICEProtocol(strings.ToLower(c.Protocol))
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Host(),
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return out, nil
}

func toPionDTLS(p core.DtlsParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto}
	switch p.Role {
	case core.DtlsRoleClient:
		out.Role = webrtc.DTLSRoleClient
	case core.DtlsRoleServer:
		out.Role = webrtc.DTLSRoleServer
	}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func fromPionFingerprints(fps []webrtc.DTLSFingerprint) []core.DtlsFingerprint {
	out := make([]core.DtlsFingerprint, 0, len(fps))
	for _, f := range fps {
		out = append(out, core.DtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

// rtxFor returns the negotiated rtx codec whose apt is pt.
func rtxFor(negotiated core.RtpCapabilities, pt uint8) (core.RtpCodecCapability, bool) {
	for _, c := range negotiated.Codecs {
		if !strings.EqualFold(c.MimeType, webrtc.MimeTypeRTX) {
			continue
		}
		if paramValue(c.Parameters["apt"]) == fmt.Sprint(pt) {
			return c, true
		}
	}
	return core.RtpCodecCapability{}, false
}

var errCodecNotNegotiated = errors.New("track codec not negotiated")

// sendCodecFor picks the negotiated codec matching what track will
// actually encode. Tracks that do not expose their codec get preferred; a
// track encoding a codec outside the negotiated set is an error.
func sendCodecFor(negotiated core.RtpCapabilities, track webrtc.TrackLocal, preferred core.RtpCodecCapability) (core.RtpCodecCapability, error) {
	withCodec, ok := track.(interface {
		Codec() webrtc.RTPCodecCapability
	})
	if !ok {
		return preferred, nil
	}
	mime := withCodec.Codec().MimeType
	if strings.EqualFold(mime, preferred.MimeType) {
		return preferred, nil
	}
	for _, c := range negotiated.Codecs {
		if strings.EqualFold(c.MimeType, mime) {
			return c, nil
		}
	}
	return core.RtpCodecCapability{}, fmt.Errorf("%w: %s", errCodecNotNegotiated, mime)
}

// sendLayer is one encoding pion actually sends.
type sendLayer struct {
	ssrc    uint32
	rtxSSRC uint32
}

func sendLayers(p webrtc.RTPSendParameters) []sendLayer {
	out := make([]sendLayer, 0, len(p.Encodings))
	for _, e := range p.Encodings {
		out = append(out, sendLayer{ssrc: uint32(e.SSRC), rtxSSRC: uint32(e.RTX.SSRC)})
	}
	return out
}

type produceLayout struct {
	mid    string
	cname  string
	codec  core.RtpCodecCapability
	rtx    *core.RtpCodecCapability
	layers []sendLayer
}

// produceParameters builds the rtpParameters announced to the server: one
// encoding per sent layer, identified by ssrc. When fewer layers are sent
// than configured, the layers take the highest ceilings.
func produceParameters(l produceLayout, encodings []core.Encoding) core.RtpParameters {
	params := core.RtpParameters{
		Mid:    l.mid,
		Codecs: []core.RtpCodecParameters{toCodecParameters(l.codec)},
		Rtcp:   core.RtcpParameters{CNAME: l.cname, ReducedSize: true},
	}
	if l.rtx != nil {
		params.Codecs = append(params.Codecs, toCodecParameters(*l.rtx))
	}
	if skip := len(encodings) - len(l.layers); skip > 0 {
		encodings = encodings[skip:]
	}
	for i, layer := range l.layers {
		enc := core.RtpEncodingParameters{SSRC: layer.ssrc}
		if i < len(encodings) {
			enc.MaxBitrate = encodings[i].MaxBitrate
			enc.ScalabilityMode = encodings[i].ScalabilityMode
		}
		if l.rtx != nil && layer.rtxSSRC != 0 {
			enc.Rtx = &core.RtxParameters{SSRC: layer.rtxSSRC}
		}
		params.Encodings = append(params.Encodings, enc)
	}
	return params
}

// receiveParameters maps a consumer's rtpParameters onto pion's decoding
// parameters.
func receiveParameters(p core.RtpParameters) (webrtc.RTPReceiveParameters, error) {
	if len(p.Encodings) == 0 || p.Encodings[0].SSRC == 0 {
		return webrtc.RTPReceiveParameters{}, fmt.Errorf("consumer rtp parameters without ssrc")
	}
	if len(p.Codecs) == 0 {
		return webrtc.RTPReceiveParameters{}, fmt.Errorf("consumer rtp parameters without codec")
	}
	enc := p.Encodings[0]
	coding := webrtc.RTPCodingParameters{
		SSRC:        webrtc.SSRC(enc.SSRC),
		PayloadType: webrtc.PayloadType(p.Codecs[0].PayloadType),
	}
	if enc.Rtx != nil {
		coding.RTX = webrtc.RTPRtxParameters{SSRC: webrtc.SSRC(enc.Rtx.SSRC)}
	}
	return webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{RTPCodingParameters: coding}},
	}, nil
}
