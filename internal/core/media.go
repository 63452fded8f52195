package core

import "github.com/pion/webrtc/v4"

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// Kinds is the production order used during session setup.
var Kinds = []MediaKind{KindAudio, KindVideo}

func (k MediaKind) Valid() bool { return k == KindAudio || k == KindVideo }

func (k MediaKind) CodecType() webrtc.RTPCodecType {
	if k == KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

// LocalTrack is a captured local track. Owned by the orchestrator.
type LocalTrack interface {
	ID() string
	Kind() MediaKind
	// TrackLocal is what gets bound to an RTP sender.
	TrackLocal() webrtc.TrackLocal
	Enabled() bool
	SetEnabled(bool)
	Live() bool
	Stop() error
}

// LayeredTrack is a LocalTrack captured as several simulcast layers,
// lowest quality first. Every layer carries an RTP stream id.
type LayeredTrack interface {
	LocalTrack
	Layers() []webrtc.TrackLocal
}

// LocalMedia is the local participant's captured track set.
type LocalMedia struct {
	Tracks map[MediaKind]LocalTrack
}

func (m *LocalMedia) Track(kind MediaKind) (LocalTrack, bool) {
	if m == nil {
		return nil, false
	}
	t, ok := m.Tracks[kind]
	return t, ok
}

// RemoteTrack is a received track exposed by a consumer.
type RemoteTrack interface {
	ID() string
	Kind() MediaKind
	Stats() TrackStats
}

type TrackStats struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// MediaStream is the combined playable stream of one remote participant.
type MediaStream struct {
	ID     string
	Tracks []RemoteTrack
}

func (s MediaStream) Track(kind MediaKind) (RemoteTrack, bool) {
	for _, t := range s.Tracks {
		if t.Kind() == kind {
			return t, true
		}
	}
	return nil, false
}
