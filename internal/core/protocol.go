package core

import (
	"encoding/json"

	"github.com/dkeye/meetclient/internal/domain"
)

// Requests and emits sent to the signaling server.
const (
	EventGetRouterRtpCapabilities = "getRouterRtpCapabilities"
	EventCreateWebRtcTransport    = "createWebRtcTransport"
	EventConnectTransport         = "connectTransport"
	EventProduce                  = "produce"
	EventConsume                  = "consume"
	EventJoinVideoRoom            = "join-video-room"
	EventLeaveVideoRoom           = "leave-video-room"
	EventToggleAudio              = "toggle-audio"
	EventToggleVideo              = "toggle-video"
	EventSendMeetingMessage       = "send-meeting-message"
)

// Events emitted by the signaling server.
const (
	EventExistingParticipants    = "existing-participants"
	EventUserJoinedVideo         = "user-joined-video"
	EventNewProducer             = "newProducer"
	EventUserLeftVideo           = "user-left-video"
	EventParticipantCountUpdated = "participant-count-updated"
	EventParticipantAudioChanged = "participant-audio-changed"
	EventParticipantVideoChanged = "participant-video-changed"
	EventMeetingMessageReceived  = "meeting-message-received"
)

// Event is one inbound server event.
type Event struct {
	Name string
	Data json.RawMessage
}

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

type RouterCapabilitiesRequest struct {
	MeetingID string `json:"meetingId"`
}

type CreateTransportRequest struct {
	MeetingID string    `json:"meetingId"`
	Direction Direction `json:"direction"`
}

type ConnectTransportRequest struct {
	MeetingID      string         `json:"meetingId"`
	TransportID    string         `json:"transportId"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

type ProduceRequest struct {
	MeetingID     string        `json:"meetingId"`
	TransportID   string        `json:"transportId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

type ProduceResponse struct {
	ID string `json:"id"`
}

type ConsumeRequest struct {
	MeetingID       string          `json:"meetingId"`
	ProducerID      string          `json:"producerId"`
	RtpCapabilities RtpCapabilities `json:"rtpCapabilities"`
}

type ConsumeResponse struct {
	ID            string        `json:"id"`
	ProducerID    string        `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

type JoinRoomMessage struct {
	MeetingID string      `json:"meetingId"`
	User      domain.User `json:"user"`
	GroupID   string      `json:"groupId,omitempty"`
}

type LeaveRoomMessage struct {
	MeetingID string `json:"meetingId"`
}

type ToggleAudioMessage struct {
	MeetingID string `json:"meetingId"`
	IsAudioOn bool   `json:"isAudioOn"`
}

type ToggleVideoMessage struct {
	MeetingID string `json:"meetingId"`
	IsVideoOn bool   `json:"isVideoOn"`
}

type SendMessageMessage struct {
	MeetingID string      `json:"meetingId"`
	Message   string      `json:"message"`
	User      domain.User `json:"user"`
}

// ProducerInfo announces a remote producer.
type ProducerInfo struct {
	ProducerID string    `json:"producerId"`
	Kind       MediaKind `json:"kind"`
}

type ParticipantInfo struct {
	SocketID  string      `json:"socketId"`
	User      domain.User `json:"user"`
	IsAudioOn bool        `json:"isAudioOn"`
	IsVideoOn bool        `json:"isVideoOn"`
	// Producers is optional; when present each is consumed like a newProducer.
	Producers []ProducerInfo `json:"producers,omitempty"`
}

type ExistingParticipantsEvent struct {
	Participants []ParticipantInfo `json:"participants"`
}

type NewProducerEvent struct {
	SocketID   string    `json:"socketId"`
	ProducerID string    `json:"producerId"`
	Kind       MediaKind `json:"kind"`
}

type UserLeftEvent struct {
	SocketID string `json:"socketId"`
}

type ParticipantCountEvent struct {
	Count int `json:"count"`
}

type AudioChangedEvent struct {
	SocketID  string `json:"socketId"`
	IsAudioOn bool   `json:"isAudioOn"`
}

type VideoChangedEvent struct {
	SocketID  string `json:"socketId"`
	IsVideoOn bool   `json:"isVideoOn"`
}

type MeetingMessageEvent struct {
	ID        string      `json:"id,omitempty"`
	Message   string      `json:"message"`
	User      domain.User `json:"user"`
	Timestamp int64       `json:"timestamp,omitempty"`
}
