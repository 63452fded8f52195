package orch

// State is the session lifecycle stage. Transitions are linear; the only
// way back is closing followed by idle.
type State int

const (
	StateIdle State = iota
	StateAcquiringLocalMedia
	StateNegotiatingCapabilities
	StateCreatingTransports
	StateJoiningRoom
	StateProducingLocalMedia
	StateActive
	StateClosing
)

var stateNames = [...]string{
	StateIdle:                    "idle",
	StateAcquiringLocalMedia:     "acquiring-local-media",
	StateNegotiatingCapabilities: "negotiating-capabilities",
	StateCreatingTransports:      "creating-transports",
	StateJoiningRoom:             "joining-room",
	StateProducingLocalMedia:     "producing-local-media",
	StateActive:                  "active",
	StateClosing:                 "closing",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
