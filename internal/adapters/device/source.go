// Package device provides file-backed capture devices: an Ogg/Opus file as
// the microphone and an IVF file as the camera.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoDevice = errors.New("no capture device configured")

const oggPageDuration = 20 * time.Millisecond

// FileSource is a core.MediaSource. An empty path means no device of that
// kind.
type FileSource struct {
	AudioPath string
	VideoPath string
	// VideoLayers holds one IVF file per simulcast layer, lowest quality
	// first. When it has more than one entry it replaces VideoPath.
	VideoLayers []string
	// StartDisabled creates tracks muted.
	StartDisabled bool
}

// capture is a local track whose pump has not started yet.
type capture interface {
	core.LocalTrack
	start()
}

type opener struct {
	kind core.MediaKind
	desc string
	fn   func() (capture, error)
}

func (s *FileSource) Acquire(ctx context.Context) (*core.LocalMedia, error) {
	video, layers := s.VideoPath, s.VideoLayers
	if len(layers) == 1 {
		video, layers = layers[0], nil
	}
	if s.AudioPath == "" && video == "" && len(layers) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrAcquisition, ErrNoDevice)
	}
	stream := uuid.NewString()
	m := &core.LocalMedia{Tracks: make(map[core.MediaKind]core.LocalTrack)}

	open := []opener{
		{core.KindAudio, s.AudioPath, func() (capture, error) { return openOgg(s.AudioPath, stream) }},
	}
	switch {
	case len(layers) > 1:
		open = append(open, opener{core.KindVideo, strings.Join(layers, ","), func() (capture, error) {
			return openIVFLayers(layers, stream)
		}})
	case video != "":
		open = append(open, opener{core.KindVideo, video, func() (capture, error) { return openIVF(video, stream, "") }})
	}
	for _, o := range open {
		if o.desc == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			stopAll(m)
			return nil, err
		}
		t, err := o.fn()
		if err != nil {
			stopAll(m)
			return nil, fmt.Errorf("%w: %s %s: %w", core.ErrAcquisition, o.kind, o.desc, err)
		}
		t.SetEnabled(!s.StartDisabled)
		t.start()
		m.Tracks[o.kind] = t
	}
	log.Info().Str("module", "device").Int("tracks", len(m.Tracks)).Int("video_layers", len(layers)).Msg("local media acquired")
	return m, nil
}

// sampleReader yields the next sample and its duration; io.EOF ends a pass
// over the file.
type sampleReader interface {
	next() ([]byte, time.Duration, error)
	io.Closer
}

type fileTrack struct {
	kind   core.MediaKind
	path   string
	track  *webrtc.TrackLocalStaticSample
	reopen func(path string) (sampleReader, error)
	logger zerolog.Logger

	enabled atomic.Bool
	live    atomic.Bool
	stopped atomic.Bool

	mu     sync.Mutex
	reader sampleReader
	cancel context.CancelFunc
	done   chan struct{}
}

func newFileTrack(kind core.MediaKind, path string, track *webrtc.TrackLocalStaticSample, r sampleReader,
	reopen func(string) (sampleReader, error),
) *fileTrack {
	t := &fileTrack{
		kind:   kind,
		path:   path,
		track:  track,
		reopen: reopen,
		reader: r,
		done:   make(chan struct{}),
		logger: log.With().Str("module", "device").Str("kind", string(kind)).Str("path", path).Logger(),
	}
	t.enabled.Store(true)
	t.live.Store(true)
	return t
}

func (t *fileTrack) ID() string                    { return t.track.ID() }
func (t *fileTrack) Kind() core.MediaKind          { return t.kind }
func (t *fileTrack) TrackLocal() webrtc.TrackLocal { return t.track }
func (t *fileTrack) Enabled() bool                 { return t.enabled.Load() }
func (t *fileTrack) SetEnabled(on bool)            { t.enabled.Store(on) }
func (t *fileTrack) Live() bool                    { return t.live.Load() }

func (t *fileTrack) start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	go t.pump(ctx)
}

// Stop ends the pump and releases the file. It is idempotent.
func (t *fileTrack) Stop() error {
	if !t.stopped.CompareAndSwap(false, true) {
		return nil
	}
	t.live.Store(false)
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-t.done
	} else {
		close(t.done)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reader == nil {
		return nil
	}
	err := t.reader.Close()
	t.reader = nil
	t.logger.Info().Msg("capture stopped")
	return err
}

// pump writes samples in real time, looping the file at EOF. Disabled
// tracks keep their clock but write nothing.
func (t *fileTrack) pump(ctx context.Context) {
	defer close(t.done)
	samples := 0
	for {
		t.mu.Lock()
		r := t.reader
		t.mu.Unlock()

		data, dur, err := r.next()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if samples == 0 {
				t.logger.Error().Msg("capture file has no samples")
				t.live.Store(false)
				return
			}
			samples = 0
			if err := t.rewind(); err != nil {
				t.logger.Error().Err(err).Msg("rewind capture file")
				t.live.Store(false)
				return
			}
			continue
		}
		if err != nil {
			t.logger.Error().Err(err).Msg("read capture file")
			t.live.Store(false)
			return
		}
		samples++

		if t.enabled.Load() {
			if err := t.track.WriteSample(media.Sample{Data: data, Duration: dur}); err != nil {
				t.logger.Warn().Err(err).Msg("write sample")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(dur):
		}
	}
}

func (t *fileTrack) rewind() error {
	r, err := t.reopen(t.path)
	if err != nil {
		return err
	}
	t.mu.Lock()
	old := t.reader
	t.reader = r
	t.mu.Unlock()
	return old.Close()
}

type oggSamples struct {
	f        *os.File
	r        *oggreader.OggReader
	granule  uint64
	rate     uint32
	fallback time.Duration
}

func newOggSamples(path string) (sampleReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, hdr, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ogg: %w", err)
	}
	rate := hdr.SampleRate
	if rate == 0 {
		rate = 48000
	}
	return &oggSamples{f: f, r: r, rate: rate, fallback: oggPageDuration}, nil
}

// next skips pages without audio (the comment header) and derives each
// page's duration from its granule position.
func (o *oggSamples) next() ([]byte, time.Duration, error) {
	for {
		page, hdr, err := o.r.ParseNextPage()
		if err != nil {
			return nil, 0, err
		}
		if hdr.GranulePosition == 0 {
			continue
		}
		dur := o.fallback
		if hdr.GranulePosition > o.granule && o.granule != 0 {
			samples := hdr.GranulePosition - o.granule
			dur = time.Duration(samples) * time.Second / time.Duration(o.rate)
		}
		o.granule = hdr.GranulePosition
		return page, dur, nil
	}
}

func (o *oggSamples) Close() error { return o.f.Close() }

func openOgg(path, stream string) (*fileTrack, error) {
	r, err := newOggSamples(path)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", stream)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return newFileTrack(core.KindAudio, path, track, r, newOggSamples), nil
}

type ivfSamples struct {
	f     *os.File
	r     *ivfreader.IVFReader
	frame time.Duration
}

func newIVFSamples(path string) (sampleReader, error) {
	r, _, err := openIVFReader(path)
	return r, err
}

func openIVFReader(path string) (*ivfSamples, *ivfreader.IVFFileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, hdr, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("ivf: %w", err)
	}
	frame := time.Duration(float64(hdr.TimebaseNumerator) / float64(hdr.TimebaseDenominator) * float64(time.Second))
	if frame <= 0 {
		frame = time.Second / 30
	}
	return &ivfSamples{f: f, r: r, frame: frame}, hdr, nil
}

func (v *ivfSamples) next() ([]byte, time.Duration, error) {
	frame, _, err := v.r.ParseNextFrame()
	if err != nil {
		return nil, 0, err
	}
	return frame, v.frame, nil
}

func (v *ivfSamples) Close() error { return v.f.Close() }

func ivfMimeType(fourCC string) (string, error) {
	switch fourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	}
	return "", fmt.Errorf("unsupported ivf codec %q", fourCC)
}

func openIVF(path, stream, rid string) (*fileTrack, error) {
	r, hdr, err := openIVFReader(path)
	if err != nil {
		return nil, err
	}
	mime, err := ivfMimeType(hdr.FourCC)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	var opts []func(*webrtc.TrackLocalStaticRTP)
	if rid != "" {
		opts = append(opts, webrtc.WithRTPStreamID(rid))
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 90000}, "video", stream, opts...)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return newFileTrack(core.KindVideo, path, track, r, newIVFSamples), nil
}

// layeredTrack is a camera captured as one file per simulcast layer. All
// layers share the track id, the stream and the codec.
type layeredTrack struct {
	layers []*fileTrack
}

func openIVFLayers(paths []string, stream string) (*layeredTrack, error) {
	lt := &layeredTrack{}
	for i, path := range paths {
		t, err := openIVF(path, stream, fmt.Sprintf("r%d", i))
		if err != nil {
			_ = lt.Stop()
			return nil, err
		}
		lt.layers = append(lt.layers, t)
		if base := lt.layers[0].track.Codec().MimeType; t.track.Codec().MimeType != base {
			_ = lt.Stop()
			return nil, fmt.Errorf("layer %s encodes %s, base layer %s", path, t.track.Codec().MimeType, base)
		}
	}
	return lt, nil
}

func (l *layeredTrack) ID() string                    { return l.layers[0].ID() }
func (l *layeredTrack) Kind() core.MediaKind          { return core.KindVideo }
func (l *layeredTrack) TrackLocal() webrtc.TrackLocal { return l.layers[0].track }
func (l *layeredTrack) Enabled() bool                 { return l.layers[0].Enabled() }

func (l *layeredTrack) Layers() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, len(l.layers))
	for i, t := range l.layers {
		out[i] = t.track
	}
	return out
}

func (l *layeredTrack) SetEnabled(on bool) {
	for _, t := range l.layers {
		t.SetEnabled(on)
	}
}

func (l *layeredTrack) Live() bool {
	for _, t := range l.layers {
		if !t.Live() {
			return false
		}
	}
	return len(l.layers) > 0
}

func (l *layeredTrack) start() {
	for _, t := range l.layers {
		t.start()
	}
}

func (l *layeredTrack) Stop() error {
	var errs []error
	for _, t := range l.layers {
		errs = append(errs, t.Stop())
	}
	return errors.Join(errs...)
}
