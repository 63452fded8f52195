package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIVF(t *testing.T, fourCC string, frames int) string {
	t.Helper()
	hdr := make([]byte, 32)
	copy(hdr[0:4], "DKIF")
	binary.LittleEndian.PutUint16(hdr[6:8], 32)
	copy(hdr[8:12], fourCC)
	binary.LittleEndian.PutUint16(hdr[12:14], 320)
	binary.LittleEndian.PutUint16(hdr[14:16], 240)
	binary.LittleEndian.PutUint32(hdr[16:20], 30)
	binary.LittleEndian.PutUint32(hdr[20:24], 1)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(frames))

	buf := hdr
	for i := 0; i < frames; i++ {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:4], 4)
		binary.LittleEndian.PutUint64(fh[4:12], uint64(i))
		buf = append(buf, fh...)
		buf = append(buf, 0x10, 0x02, 0x00, byte(i))
	}
	path := filepath.Join(t.TempDir(), "camera.ivf")
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

var oggCRC = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

func oggPage(headerType byte, granule uint64, index uint32, payload []byte) []byte {
	hdr := make([]byte, 27)
	copy(hdr[0:4], "OggS")
	hdr[5] = headerType
	binary.LittleEndian.PutUint64(hdr[6:14], granule)
	binary.LittleEndian.PutUint32(hdr[14:18], 1)
	binary.LittleEndian.PutUint32(hdr[18:22], index)
	hdr[26] = 1
	page := append(hdr, byte(len(payload)))
	page = append(page, payload...)

	var crc uint32
	for _, b := range page {
		crc = (crc << 8) ^ oggCRC[byte(crc>>24)^b]
	}
	binary.LittleEndian.PutUint32(page[22:26], crc)
	return page
}

func writeOgg(t *testing.T) string {
	t.Helper()
	head := []byte("OpusHead")
	head = append(head, 1, 2)
	head = binary.LittleEndian.AppendUint16(head, 312)
	head = binary.LittleEndian.AppendUint32(head, 48000)
	head = binary.LittleEndian.AppendUint16(head, 0)
	head = append(head, 0)

	buf := oggPage(0x02, 0, 0, head)
	buf = append(buf, oggPage(0, 0, 1, []byte("OpusTags"))...)
	buf = append(buf, oggPage(0, 960, 2, []byte{0xfc, 0xff, 0xfe})...)
	buf = append(buf, oggPage(0, 1920, 3, []byte{0xfc, 0xff, 0xfe})...)

	path := filepath.Join(t.TempDir(), "mic.ogg")
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestAcquire_AudioAndVideo(t *testing.T) {
	src := &FileSource{AudioPath: writeOgg(t), VideoPath: writeIVF(t, "VP80", 3)}
	m, err := src.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { stopAll(m) })

	audio, ok := m.Track(core.KindAudio)
	require.True(t, ok)
	video, ok := m.Track(core.KindVideo)
	require.True(t, ok)

	assert.Equal(t, core.KindAudio, audio.Kind())
	assert.True(t, audio.Live())
	assert.True(t, audio.Enabled())

	sample, ok := video.TrackLocal().(*webrtc.TrackLocalStaticSample)
	require.True(t, ok)
	assert.Equal(t, webrtc.MimeTypeVP8, sample.Codec().MimeType)
	assert.Equal(t, sample.StreamID(), audio.TrackLocal().StreamID(), "tracks share one stream")

	// Loops over the short files without dying.
	time.Sleep(250 * time.Millisecond)
	assert.True(t, video.Live())
	assert.True(t, audio.Live())

	video.SetEnabled(false)
	assert.False(t, video.Enabled())

	require.NoError(t, video.Stop())
	require.NoError(t, video.Stop())
	assert.False(t, video.Live())
}

func TestAcquire_VideoOnly(t *testing.T) {
	src := &FileSource{VideoPath: writeIVF(t, "VP90", 2), StartDisabled: true}
	m, err := src.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { stopAll(m) })

	_, ok := m.Track(core.KindAudio)
	assert.False(t, ok)
	video, ok := m.Track(core.KindVideo)
	require.True(t, ok)
	assert.False(t, video.Enabled())
	assert.Equal(t, webrtc.MimeTypeVP9, video.TrackLocal().(*webrtc.TrackLocalStaticSample).Codec().MimeType)
}

func TestAcquire_Failures(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.ivf")
	require.NoError(t, os.WriteFile(garbage, []byte("not a video file at all, definitely"), 0o600))

	for name, src := range map[string]*FileSource{
		"no devices":    {},
		"missing audio": {AudioPath: filepath.Join(t.TempDir(), "missing.ogg")},
		"malformed":     {VideoPath: garbage},
		"codec":         {VideoPath: writeIVF(t, "H264", 1)},
		"audio as ogg":  {AudioPath: garbage},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := src.Acquire(context.Background())
			require.ErrorIs(t, err, core.ErrAcquisition)
		})
	}
}

func TestAcquire_FailureStopsOpenedTracks(t *testing.T) {
	src := &FileSource{AudioPath: writeOgg(t), VideoPath: filepath.Join(t.TempDir(), "missing.ivf")}
	_, err := src.Acquire(context.Background())
	require.ErrorIs(t, err, core.ErrAcquisition)
}

func TestAcquire_EmptyFileStopsTrack(t *testing.T) {
	src := &FileSource{VideoPath: writeIVF(t, "VP80", 0)}
	m, err := src.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { stopAll(m) })

	video, _ := m.Track(core.KindVideo)
	require.Eventually(t, func() bool { return !video.Live() }, time.Second, 5*time.Millisecond)
}

func TestAcquire_SimulcastLayers(t *testing.T) {
	src := &FileSource{VideoLayers: []string{writeIVF(t, "VP80", 2), writeIVF(t, "VP80", 2), writeIVF(t, "VP80", 2)}}
	m, err := src.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { stopAll(m) })

	video, ok := m.Track(core.KindVideo)
	require.True(t, ok)
	layered, ok := video.(core.LayeredTrack)
	require.True(t, ok)

	layers := layered.Layers()
	require.Len(t, layers, 3)
	for i, l := range layers {
		assert.Equal(t, fmt.Sprintf("r%d", i), l.RID())
		assert.Equal(t, layers[0].ID(), l.ID())
		assert.Equal(t, layers[0].StreamID(), l.StreamID())
	}
	assert.Same(t, layers[0], video.TrackLocal())

	video.SetEnabled(false)
	for _, l := range layered.(*layeredTrack).layers {
		assert.False(t, l.Enabled())
	}
	assert.True(t, video.Live())
	require.NoError(t, video.Stop())
	assert.False(t, video.Live())
}

func TestAcquire_SingleLayerIsPlainVideo(t *testing.T) {
	src := &FileSource{VideoLayers: []string{writeIVF(t, "VP80", 2)}}
	m, err := src.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { stopAll(m) })

	video, _ := m.Track(core.KindVideo)
	_, layered := video.(core.LayeredTrack)
	assert.False(t, layered)
	assert.Empty(t, video.TrackLocal().RID())
}

func TestAcquire_LayerCodecMismatch(t *testing.T) {
	src := &FileSource{VideoLayers: []string{writeIVF(t, "VP80", 2), writeIVF(t, "VP90", 2)}}
	_, err := src.Acquire(context.Background())
	require.ErrorIs(t, err, core.ErrAcquisition)
	assert.Contains(t, err.Error(), "base layer")
}

func TestIVFMimeType(t *testing.T) {
	mime, err := ivfMimeType("VP80")
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP8, mime)

	// Only codecs the media engine can send are accepted.
	_, err = ivfMimeType("AV01")
	require.Error(t, err)
}
