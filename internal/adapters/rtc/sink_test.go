package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/meetclient/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanReader feeds packets until closed.
type chanReader struct {
	pkts chan *rtp.Packet
	once sync.Once
}

func newChanReader() *chanReader { return &chanReader{pkts: make(chan *rtp.Packet, 8)} }

func (r *chanReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-r.pkts
	if !ok {
		return nil, nil, io.EOF
	}
	return p, nil, nil
}

func (r *chanReader) close() { r.once.Do(func() { close(r.pkts) }) }

func TestSink_CountsPackets(t *testing.T) {
	src := newChanReader()
	s := NewSink("c-1", core.KindVideo, src)
	var seen []uint16
	var mu sync.Mutex
	s.onPacket = func(p *rtp.Packet) {
		mu.Lock()
		seen = append(seen, p.SequenceNumber)
		mu.Unlock()
	}

	require.True(t, s.Start(context.Background(), zerolog.Nop()))
	require.False(t, s.Start(context.Background(), zerolog.Nop()), "second start is a no-op")
	assert.Equal(t, SinkRunning, s.State())

	for i := uint16(0); i < 3; i++ {
		src.pkts <- &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: i, SSRC: 9}, Payload: make([]byte, 100)}
	}
	src.close()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sink did not stop on EOF")
	}
	st := s.Stats()
	assert.Equal(t, uint64(3), st.Packets)
	assert.Equal(t, uint64(3*(12+100)), st.Bytes)
	assert.Equal(t, SinkStopped, s.State())
	mu.Lock()
	assert.Equal(t, []uint16{0, 1, 2}, seen)
	mu.Unlock()
}

func TestSink_StopBeforeStart(t *testing.T) {
	s := NewSink("c-2", core.KindAudio, newChanReader())
	s.Stop()
	s.Stop()
	assert.False(t, s.Start(context.Background(), zerolog.Nop()))
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.Equal(t, "c-2", s.ID())
	assert.Equal(t, core.KindAudio, s.Kind())
}

type errReader struct{}

func (errReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, errors.New("srtp closed")
}

func TestSink_ReadError(t *testing.T) {
	s := NewSink("c-3", core.KindAudio, errReader{})
	require.True(t, s.Start(context.Background(), zerolog.Nop()))
	<-s.Done()
	assert.Equal(t, SinkStopped, s.State())
	assert.Zero(t, s.Stats().Packets)
}
