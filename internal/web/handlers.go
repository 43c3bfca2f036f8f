package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/history"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/status"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.ctl.GetState()); err != nil {
		s.log.Error("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.ctl.GetState())) //nolint:errcheck // client may be gone
}

// Door moves block until the motion ends; a rejected move is a normal
// response with moved=false.
func (s *Server) handleOpenDoor(w http.ResponseWriter, r *http.Request) {
	s.writeMove(w, s.ctl.OpenDoor())
}

func (s *Server) handleCloseDoor(w http.ResponseWriter, r *http.Request) {
	s.writeMove(w, s.ctl.CloseDoor())
}

func (s *Server) writeMove(w http.ResponseWriter, result door.MoveResult) {
	writeJSON(w, http.StatusOK, MoveResponse{
		Result: result.String(),
		Moved:  result.Moved(),
		Door:   s.ctl.GetState().Door.String(),
	})
}

func (s *Server) handleStopDoor(w http.ResponseWriter, r *http.Request) {
	s.ctl.StopDoor()
	writeJSON(w, http.StatusOK, DoorResponse{Door: s.ctl.GetState().Door.String()})
}

func (s *Server) handleIsOpen(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OpenResponse{Open: s.ctl.IsDoorOpen()})
}

func (s *Server) handleIsClosed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ClosedResponse{Closed: s.ctl.IsDoorClosed()})
}

func (s *Server) handleSwitchLight(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	var switchLight func(bool) error
	switch channel {
	case "indoor":
		switchLight = s.ctl.SwitchIndoorLight
	case "outdoor":
		switchLight = s.ctl.SwitchOutdoorLight
	default:
		writeError(w, http.StatusNotFound, errCodeNotFound, fmt.Sprintf("unknown light %q", channel))
		return
	}

	var req LightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, `missing "on"`)
		return
	}

	if err := switchLight(*req.On); err != nil {
		s.log.Error("switch light failed", "channel", channel, "error", err)
		writeError(w, http.StatusInternalServerError, errCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LightResponse{Channel: channel, On: *req.On})
}

func (s *Server) handleAutomatic(w http.ResponseWriter, r *http.Request) {
	var req AutomaticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON: "+err.Error())
		return
	}
	setting, err := schedule.ParseSetting(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status.NewAutomaticJSON(s.ctl.SwitchDoorAutomatic(setting)))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status.Build(s.ctl.GetState()))
}

// handleWait long-polls for the next state change. The timeout query
// parameter accepts a Go duration ("45s") or plain seconds.
func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	timeout, err := s.waitTimeout(r.URL.Query().Get("timeout"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	changed, snap := s.ctl.WaitForStateChange(r.Context(), timeout)
	writeJSON(w, http.StatusOK, WaitResponse{Changed: changed, Status: status.Build(snap).Status})
}

func (s *Server) waitTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return s.opts.WaitTimeout, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil {
			return 0, fmt.Errorf("invalid timeout %q", raw)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", raw)
	}
	if d > s.opts.MaxWaitTimeout {
		d = s.opts.MaxWaitTimeout
	}
	return d, nil
}

func (s *Server) handleNextAction(w http.ResponseWriter, r *http.Request) {
	var resp NextActionResponse
	if next, ok := s.ctl.GetNextAction(); ok {
		resp.Action = &status.ActionJSON{
			At:     next.At.Format(time.RFC3339),
			Action: next.Action.String(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMoves(w http.ResponseWriter, r *http.Request) {
	if s.moves == nil {
		writeError(w, http.StatusServiceUnavailable, errCodeUnavailable, "history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errCodeBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	moves, err := s.moves.Moves(r.Context(), limit)
	if err != nil {
		s.log.Error("list door moves", "error", err)
		writeError(w, http.StatusInternalServerError, errCodeInternal, "failed to list moves")
		return
	}
	if moves == nil {
		moves = []history.Move{}
	}
	writeJSON(w, http.StatusOK, MovesResponse{Moves: moves})
}
