package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/history"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/solar"
	"github.com/sweeney/coop-controller/internal/status"
)

type fakeController struct {
	hub *status.Tracker

	mu       sync.Mutex
	calls    []string
	result   door.MoveResult
	lightErr error
	next     *solar.Event
	timeouts []time.Duration
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) OpenDoor() door.MoveResult {
	f.record("open")
	if f.result.Moved() {
		f.hub.Publish(func(s *status.Snapshot) { s.Door = door.Open })
	}
	return f.result
}

func (f *fakeController) CloseDoor() door.MoveResult {
	f.record("close")
	if f.result.Moved() {
		f.hub.Publish(func(s *status.Snapshot) { s.Door = door.Closed })
	}
	return f.result
}

func (f *fakeController) StopDoor() {
	f.record("stop")
	f.hub.Publish(func(s *status.Snapshot) { s.Door = door.NotMoving })
}

func (f *fakeController) IsDoorOpen() bool   { return f.hub.Snapshot().Door == door.Open }
func (f *fakeController) IsDoorClosed() bool { return f.hub.Snapshot().Door == door.Closed }

func (f *fakeController) SwitchIndoorLight(on bool) error {
	f.record("indoor")
	if f.lightErr != nil {
		return f.lightErr
	}
	f.hub.Publish(func(s *status.Snapshot) { s.IndoorLight = on })
	return nil
}

func (f *fakeController) SwitchOutdoorLight(on bool) error {
	f.record("outdoor")
	if f.lightErr != nil {
		return f.lightErr
	}
	f.hub.Publish(func(s *status.Snapshot) { s.OutdoorLight = on })
	return nil
}

func (f *fakeController) SwitchDoorAutomatic(setting schedule.Setting) schedule.Mode {
	f.record("automatic:" + string(setting))
	mode := schedule.Mode{Kind: schedule.On}
	switch setting {
	case schedule.SettingDisabled:
		mode = schedule.Mode{Kind: schedule.PermanentlyOff}
	case schedule.SettingOff:
		mode = schedule.Mode{Kind: schedule.TemporarilyOff, ReenableAt: time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)}
	}
	f.hub.Publish(func(s *status.Snapshot) { s.Automatic = mode })
	return mode
}

func (f *fakeController) GetState() status.Snapshot { return f.hub.Snapshot() }

func (f *fakeController) WaitForStateChange(ctx context.Context, timeout time.Duration) (bool, status.Snapshot) {
	f.mu.Lock()
	f.timeouts = append(f.timeouts, timeout)
	f.mu.Unlock()
	return f.hub.WaitForChange(ctx, timeout)
}

func (f *fakeController) GetNextAction() (solar.Event, bool) {
	if f.next == nil {
		return solar.Event{}, false
	}
	return *f.next, true
}

type fakeMoves struct {
	moves []history.Move
	err   error
	limit int
}

func (f *fakeMoves) Moves(_ context.Context, limit int) ([]history.Move, error) {
	f.limit = limit
	return f.moves, f.err
}

func newTestServer(t *testing.T, moves MoveHistory) (*httptest.Server, *fakeController) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hub := status.NewTracker(start, status.Config{
		Broker:   "tcp://192.168.1.200:1883",
		HTTPAddr: ":8010",
		Latitude: 51.14,
		Timezone: "Europe/Berlin",
	})
	ctl := &fakeController{hub: hub, result: door.MoveCompleted}

	srv := New(Options{WaitTimeout: 50 * time.Millisecond, MaxWaitTimeout: 200 * time.Millisecond}, ctl, hub, moves, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, ctl
}

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, ctl := newTestServer(t, nil)
	ctl.hub.Publish(func(s *status.Snapshot) {
		s.Door = door.Open
		s.OutdoorLight = true
	})
	ctl.hub.SetMQTTConnected(true)

	resp := doRequest(t, http.MethodGet, ts.URL+"/index.json", "")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	decode(t, resp, &sj)
	if sj.Status.Door != "open" {
		t.Errorf("Door: got %q, want open", sj.Status.Door)
	}
	if !sj.Status.OutdoorLight {
		t.Error("expected OutdoorLight=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.Timezone != "Europe/Berlin" {
		t.Errorf("Config.Timezone: got %q", sj.Status.Config.Timezone)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	ts, ctl := newTestServer(t, nil)
	ctl.hub.Publish(func(s *status.Snapshot) { s.Door = door.Closed })

	for _, path := range []string{"/", "/index.html"} {
		resp := doRequest(t, http.MethodGet, ts.URL+path, "")
		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q, want text/html", path, ct)
		}
	}

	resp := doRequest(t, http.MethodGet, ts.URL+"/", "")
	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(body.String(), `id="door" class="closed">closed<`) {
		t.Error("status page does not show the closed door")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/nonexistent", "")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/state", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/state", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID: got %q, want abc-123", got)
	}
}

func TestOpenAndCloseDoor(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/door/open", "")
	var mr MoveResponse
	decode(t, resp, &mr)
	if mr.Result != "completed" || !mr.Moved || mr.Door != "open" {
		t.Errorf("open: got %+v", mr)
	}

	var or OpenResponse
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/door/is-open", ""), &or)
	if !or.Open {
		t.Error("expected is-open=true")
	}

	decode(t, doRequest(t, http.MethodPost, ts.URL+"/api/v1/door/close", ""), &mr)
	if mr.Door != "closed" {
		t.Errorf("close: got %+v", mr)
	}

	var cr ClosedResponse
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/door/is-closed", ""), &cr)
	if !cr.Closed {
		t.Error("expected is-closed=true")
	}

	if got := ctl.Calls(); len(got) != 2 || got[0] != "open" || got[1] != "close" {
		t.Errorf("calls: got %v", got)
	}
}

func TestOpenDoorRejected(t *testing.T) {
	ts, ctl := newTestServer(t, nil)
	ctl.result = door.MoveRejected

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/door/open", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	var mr MoveResponse
	decode(t, resp, &mr)
	if mr.Moved || mr.Result != "rejected" {
		t.Errorf("got %+v, want rejected", mr)
	}
}

func TestDoorOpenRequiresPost(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/door/open", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if len(ctl.Calls()) != 0 {
		t.Errorf("no command should run, got %v", ctl.Calls())
	}
}

func TestStopDoor(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	var dr DoorResponse
	decode(t, doRequest(t, http.MethodPost, ts.URL+"/api/v1/door/stop", ""), &dr)
	if dr.Door != "not_moving" {
		t.Errorf("door: got %q, want not_moving", dr.Door)
	}
	if got := ctl.Calls(); len(got) != 1 || got[0] != "stop" {
		t.Errorf("calls: got %v", got)
	}
}

func TestSwitchLight(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	resp := doRequest(t, http.MethodPut, ts.URL+"/api/v1/lights/indoor", `{"on":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var lr LightResponse
	decode(t, resp, &lr)
	if lr.Channel != "indoor" || !lr.On {
		t.Errorf("got %+v", lr)
	}
	if !ctl.GetState().IndoorLight {
		t.Error("indoor light not switched")
	}

	doRequest(t, http.MethodPut, ts.URL+"/api/v1/lights/outdoor", `{"on":true}`)
	if !ctl.GetState().OutdoorLight {
		t.Error("outdoor light not switched")
	}
}

func TestSwitchLightErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		lightErr error
		want     int
	}{
		{"unknown channel", "/api/v1/lights/barn", `{"on":true}`, nil, http.StatusNotFound},
		{"invalid json", "/api/v1/lights/indoor", `{"on":`, nil, http.StatusBadRequest},
		{"missing on", "/api/v1/lights/indoor", `{}`, nil, http.StatusBadRequest},
		{"relay failure", "/api/v1/lights/outdoor", `{"on":false}`, errors.New("gpio write"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ctl := newTestServer(t, nil)
			ctl.lightErr = tt.lightErr

			resp := doRequest(t, http.MethodPut, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
			var e Error
			decode(t, resp, &e)
			if e.Status != tt.want || e.Message == "" {
				t.Errorf("error body: got %+v", e)
			}
		})
	}
}

func TestAutomatic(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	var aj status.AutomaticJSON
	decode(t, doRequest(t, http.MethodPut, ts.URL+"/api/v1/automatic", `{"mode":"off"}`), &aj)
	if aj.Mode != "temporarily_off" || aj.ReenableAt != "2026-04-02T08:30:00Z" {
		t.Errorf("got %+v", aj)
	}

	decode(t, doRequest(t, http.MethodPut, ts.URL+"/api/v1/automatic", `{"mode":"disabled"}`), &aj)
	if aj.Mode != "permanently_off" || aj.ReenableAt != "" {
		t.Errorf("got %+v", aj)
	}

	resp := doRequest(t, http.MethodPut, ts.URL+"/api/v1/automatic", `{"mode":"maybe"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if got := ctl.Calls(); len(got) != 2 {
		t.Errorf("calls: got %v", got)
	}
}

func TestStateEndpoint(t *testing.T) {
	ts, ctl := newTestServer(t, nil)
	ctl.hub.Publish(func(s *status.Snapshot) { s.IndoorLight = true })

	var sj status.StatusJSON
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/state", ""), &sj)
	if !sj.Status.IndoorLight {
		t.Error("expected indoor light on")
	}
	if sj.Status.Seq != 1 {
		t.Errorf("seq: got %d, want 1", sj.Status.Seq)
	}
}

func TestWaitReturnsPendingChange(t *testing.T) {
	ts, ctl := newTestServer(t, nil)
	ctl.hub.Publish(func(s *status.Snapshot) { s.Door = door.Open })

	var wr WaitResponse
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/state/wait", ""), &wr)
	if !wr.Changed {
		t.Error("expected changed=true")
	}
	if wr.Status.Door != "open" {
		t.Errorf("door: got %q, want open", wr.Status.Door)
	}

	// the change was consumed
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/state/wait?timeout=10ms", ""), &wr)
	if wr.Changed {
		t.Error("expected changed=false after the change was consumed")
	}
}

func TestWaitWakesOnChange(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ctl.hub.Publish(func(s *status.Snapshot) { s.OutdoorLight = true })
	}()

	var wr WaitResponse
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/state/wait?timeout=5s", ""), &wr)
	if !wr.Changed || !wr.Status.OutdoorLight {
		t.Errorf("got %+v, want change with outdoor light on", wr)
	}
}

func TestWaitTimeoutParsing(t *testing.T) {
	tests := []struct {
		query string
		want  time.Duration
	}{
		{"", 50 * time.Millisecond},
		{"?timeout=20ms", 20 * time.Millisecond},
		{"?timeout=0.1", 100 * time.Millisecond},
		{"?timeout=10m", 200 * time.Millisecond}, // capped
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ts, ctl := newTestServer(t, nil)
			doRequest(t, http.MethodGet, ts.URL+"/api/v1/state/wait"+tt.query, "")

			ctl.mu.Lock()
			defer ctl.mu.Unlock()
			if len(ctl.timeouts) != 1 || ctl.timeouts[0] != tt.want {
				t.Errorf("timeouts: got %v, want [%v]", ctl.timeouts, tt.want)
			}
		})
	}
}

func TestWaitInvalidTimeout(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	for _, q := range []string{"soon", "-1s"} {
		resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/state/wait?timeout="+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("timeout=%s: got %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestNextAction(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	var nr NextActionResponse
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/next-action", ""), &nr)
	if nr.Action != nil {
		t.Errorf("expected null action, got %+v", nr.Action)
	}

	ctl.next = &solar.Event{At: time.Date(2026, 4, 3, 5, 45, 0, 0, time.UTC), Action: solar.ActionOpen}
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/next-action", ""), &nr)
	if nr.Action == nil {
		t.Fatal("expected an action")
	}
	if nr.Action.Action != "open" || nr.Action.At != "2026-04-03T05:45:00Z" {
		t.Errorf("got %+v", nr.Action)
	}
}

func TestMovesHistory(t *testing.T) {
	started := time.Date(2026, 4, 2, 6, 0, 0, 0, time.UTC)
	moves := &fakeMoves{moves: []history.Move{
		{ID: "a", Direction: "up", Result: "completed", StartedAt: started, DurationMs: 7100},
	}}
	ts, _ := newTestServer(t, moves)

	var mr MovesResponse
	decode(t, doRequest(t, http.MethodGet, ts.URL+"/api/v1/history/moves?limit=5", ""), &mr)
	if len(mr.Moves) != 1 || mr.Moves[0].ID != "a" || mr.Moves[0].DurationMs != 7100 {
		t.Errorf("got %+v", mr.Moves)
	}
	if moves.limit != 5 {
		t.Errorf("limit: got %d, want 5", moves.limit)
	}

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/history/moves?limit=x", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestMovesHistoryEmptyAndFailing(t *testing.T) {
	ts, _ := newTestServer(t, &fakeMoves{})
	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/history/moves", "")
	var body bytes.Buffer
	body.ReadFrom(resp.Body) //nolint:errcheck
	if strings.TrimSpace(body.String()) != `{"moves":[]}` {
		t.Errorf("body: got %s", body.String())
	}

	ts, _ = newTestServer(t, &fakeMoves{err: errors.New("disk I/O error")})
	resp = doRequest(t, http.MethodGet, ts.URL+"/api/v1/history/moves", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}

	ts, _ = newTestServer(t, nil)
	resp = doRequest(t, http.MethodGet, ts.URL+"/api/v1/history/moves", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}

func TestWebSocketStreamsChanges(t *testing.T) {
	ts, ctl := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()

	read := func() status.StatusJSON {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
		var sj status.StatusJSON
		if err := conn.ReadJSON(&sj); err != nil {
			t.Fatalf("read: %v", err)
		}
		return sj
	}

	first := read()
	if first.Status.Door != "not_moving" {
		t.Errorf("initial door: got %q, want not_moving", first.Status.Door)
	}

	ctl.hub.Publish(func(s *status.Snapshot) { s.Door = door.MovingUp })
	var got status.StatusJSON
	for i := 0; i < 5; i++ {
		got = read()
		if got.Status.Door == "moving_up" {
			break
		}
	}
	if got.Status.Door != "moving_up" {
		t.Errorf("door: got %q, want moving_up", got.Status.Door)
	}

	// the stream must not consume the change long-poll clients wait for
	changed, _ := ctl.hub.WaitForChange(context.Background(), 10*time.Millisecond)
	if !changed {
		t.Error("websocket stream consumed the pending change")
	}
}
