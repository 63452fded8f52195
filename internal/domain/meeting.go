package domain

import "time"

type MeetingID string

// Meeting identifies the media room a session joins.
type Meeting struct {
	ID      MeetingID
	GroupID string
}

type ChatMessage struct {
	ID     string    `json:"id"`
	User   User      `json:"user"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}
