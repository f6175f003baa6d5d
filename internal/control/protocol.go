package control

import (
	"tools.zach/dev/powerhook/internal/state"
)

// Commands understood by the daemon.
const (
	CmdStatus = "status"
	CmdStop   = "stop"
)

// Request is the JSON body of an [OpRequest] frame.
type Request struct {
	// Cmd is one of [CmdStatus] or [CmdStop].
	Cmd string `json:"cmd"`
	// Nonce is echoed back in the matching [Response].
	Nonce string `json:"nonce"`
}

// Response is the JSON body of an [OpResponse] frame.
type Response struct {
	// Nonce echoes the request nonce.
	Nonce string `json:"nonce"`
	// OK is false when the command failed; Error then says why.
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// Registered reports whether the bridge currently holds a power
	// notification registration.
	Registered bool `json:"registered"`
	// State is the daemon's in-memory state, set for status requests.
	State *state.State `json:"state,omitempty"`
}
