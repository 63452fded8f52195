package core

import "context"

// MediaSource acquires local capture tracks.
type MediaSource interface {
	Acquire(ctx context.Context) (*LocalMedia, error)
}

// MediaEngine builds transports for a negotiated session.
type MediaEngine interface {
	LocalCapabilities() RtpCapabilities
	// Configure is called once with the reconciled capabilities before any
	// transport is created.
	Configure(negotiated RtpCapabilities) error
	NewTransport(ctx context.Context, dir Direction, opts TransportOptions) (Transport, error)
}

// ConnectHandler delivers local DTLS parameters to the server.
type ConnectHandler func(ctx context.Context, local DtlsParameters) error

// ProduceHandler registers local rtp parameters with the server and returns
// the server-assigned producer id.
type ProduceHandler func(ctx context.Context, params RtpParameters) (string, error)

type Transport interface {
	ID() string
	Direction() Direction
	// OnConnect sets the handler invoked when local connection parameters
	// are ready. It is invoked at most once.
	OnConnect(ConnectHandler)
	Connect(ctx context.Context) error
	Produce(ctx context.Context, opts ProduceOptions, register ProduceHandler) (ProducerHandle, error)
	Consume(ctx context.Context, opts ConsumeOptions) (ConsumerHandle, error)
	Close() error
}

// Encoding is one outbound layer.
type Encoding struct {
	MaxBitrate      uint64
	ScalabilityMode string
}

type ProduceOptions struct {
	Track     LocalTrack
	Codec     RtpCodecCapability
	Encodings []Encoding
}

type ConsumeOptions struct {
	ID            string
	ProducerID    string
	Kind          MediaKind
	RtpParameters RtpParameters
}

type ProducerHandle interface {
	Pause() error
	Resume() error
	Close() error
}

type ConsumerHandle interface {
	Track() RemoteTrack
	Resume() error
	Close() error
}
