// Package media holds the client-side session machinery: capability
// negotiation, the send/recv transport pair and the remote peer registry.
package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/meetclient/internal/core"
)

var ErrAlreadyLoaded = errors.New("capabilities already loaded")

// Negotiator reconciles local codec support with the router's capabilities.
type Negotiator struct {
	local      core.RtpCapabilities
	negotiated core.RtpCapabilities
	canProduce map[core.MediaKind]bool
	loaded     bool
}

func NewNegotiator(local core.RtpCapabilities) *Negotiator {
	return &Negotiator{local: local, canProduce: make(map[core.MediaKind]bool)}
}

// Load computes the common capability set. It has no side effects beyond
// the negotiator's own tables.
func (n *Negotiator) Load(remote core.RtpCapabilities) error {
	if n.loaded {
		return ErrAlreadyLoaded
	}

	var codecs []core.RtpCodecCapability
	kept := make(map[uint8]bool)
	for _, rc := range remote.Codecs {
		if isRtx(rc) {
			continue
		}
		for _, lc := range n.local.Codecs {
			if codecsMatch(lc, rc) {
				codecs = append(codecs, rc)
				kept[rc.PreferredPayloadType] = true
				break
			}
		}
	}
	media := len(codecs)
	if media == 0 {
		return fmt.Errorf("%w: no common codec with router", core.ErrUnsupportedCapabilities)
	}

	localRtx := make(map[core.MediaKind]bool)
	for _, lc := range n.local.Codecs {
		if isRtx(lc) {
			localRtx[lc.Kind] = true
		}
	}
	for _, rc := range remote.Codecs {
		if !isRtx(rc) || !localRtx[rc.Kind] {
			continue
		}
		apt, ok := paramUint8(rc.Parameters, "apt")
		if ok && kept[apt] {
			codecs = append(codecs, rc)
		}
	}

	var exts []core.RtpHeaderExtension
	for _, re := range remote.HeaderExtensions {
		for _, le := range n.local.HeaderExtensions {
			if le.Kind == re.Kind && le.URI == re.URI {
				exts = append(exts, re)
				break
			}
		}
	}

	n.negotiated = core.RtpCapabilities{Codecs: codecs, HeaderExtensions: exts}
	for _, c := range codecs[:media] {
		n.canProduce[c.Kind] = true
	}
	n.loaded = true
	return nil
}

func (n *Negotiator) Loaded() bool { return n.loaded }

func (n *Negotiator) CanProduce(kind core.MediaKind) bool {
	return n.canProduce[kind]
}

// SendCodec returns the preferred negotiated codec for kind.
func (n *Negotiator) SendCodec(kind core.MediaKind) (core.RtpCodecCapability, bool) {
	for _, c := range n.negotiated.Codecs {
		if c.Kind == kind && !isRtx(c) {
			return c, true
		}
	}
	return core.RtpCodecCapability{}, false
}

// RecvCapabilities is the capability set sent with every consume request.
func (n *Negotiator) RecvCapabilities() core.RtpCapabilities {
	out := core.RtpCapabilities{
		Codecs:           make([]core.RtpCodecCapability, len(n.negotiated.Codecs)),
		HeaderExtensions: make([]core.RtpHeaderExtension, len(n.negotiated.HeaderExtensions)),
	}
	copy(out.Codecs, n.negotiated.Codecs)
	copy(out.HeaderExtensions, n.negotiated.HeaderExtensions)
	return out
}

func isRtx(c core.RtpCodecCapability) bool {
	return strings.HasSuffix(strings.ToLower(c.MimeType), "/rtx")
}

func codecsMatch(a, b core.RtpCodecCapability) bool {
	if !strings.EqualFold(a.MimeType, b.MimeType) || a.ClockRate != b.ClockRate {
		return false
	}
	if a.Kind == core.KindAudio && channels(a) != channels(b) {
		return false
	}
	switch strings.ToLower(a.MimeType) {
	case "video/h264":
		return paramString(a.Parameters, "packetization-mode", "0") ==
			paramString(b.Parameters, "packetization-mode", "0")
	case "video/vp9":
		return paramString(a.Parameters, "profile-id", "0") ==
			paramString(b.Parameters, "profile-id", "0")
	}
	return true
}

func channels(c core.RtpCodecCapability) uint16 {
	if c.Channels == 0 {
		return 1
	}
	return c.Channels
}

// paramString renders a codec parameter; JSON numbers decode as float64.
func paramString(p map[string]any, key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%d", int64(x))
	default:
		return fmt.Sprint(x)
	}
}

func paramUint8(p map[string]any, key string) (uint8, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return uint8(x), true
	case int:
		return uint8(x), true
	case uint8:
		return x, true
	}
	return 0, false
}
