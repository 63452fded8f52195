package domain

// Participant is a roster entry for a remote member of the meeting.
// It exists independently of whether media is flowing.
type Participant struct {
	SocketID string `json:"socketId"`
	User     User   `json:"user"`
	AudioOn  bool   `json:"audioOn"`
	VideoOn  bool   `json:"videoOn"`
}
