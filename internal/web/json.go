package web

import (
	"encoding/json"
	"net/http"

	"github.com/sweeney/coop-controller/internal/history"
	"github.com/sweeney/coop-controller/internal/status"
)

// Error is the body of every non-2xx API response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeBadRequest  = "bad_request"
	errCodeNotFound    = "not_found"
	errCodeInternal    = "internal_error"
	errCodeUnavailable = "unavailable"
)

// MoveResponse reports the outcome of a door command.
type MoveResponse struct {
	Result string `json:"result"`
	Moved  bool   `json:"moved"`
	Door   string `json:"door"`
}

// DoorResponse reports the door position.
type DoorResponse struct {
	Door string `json:"door"`
}

// OpenResponse answers /door/is-open.
type OpenResponse struct {
	Open bool `json:"open"`
}

// ClosedResponse answers /door/is-closed.
type ClosedResponse struct {
	Closed bool `json:"closed"`
}

// LightRequest is the body of PUT /lights/{channel}.
type LightRequest struct {
	On *bool `json:"on"`
}

// LightResponse reports a light channel after switching.
type LightResponse struct {
	Channel string `json:"channel"`
	On      bool   `json:"on"`
}

// AutomaticRequest is the body of PUT /automatic.
type AutomaticRequest struct {
	Mode string `json:"mode"`
}

// WaitResponse answers /state/wait.
type WaitResponse struct {
	Changed bool               `json:"changed"`
	Status  status.StatusInner `json:"status"`
}

// NextActionResponse answers /next-action. Action is null when nothing is
// scheduled.
type NextActionResponse struct {
	Action *status.ActionJSON `json:"action"`
}

// MovesResponse answers /history/moves.
type MovesResponse struct {
	Moves []history.Move `json:"moves"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // client may be gone
	}
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, Error{Status: code, Code: errCode, Message: message})
}
