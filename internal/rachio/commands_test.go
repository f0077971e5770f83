package rachio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
)

// commandRecorder captures PUT command requests for assertions.
type commandRecorder struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	status int
}

func (cr *commandRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)

	cr.paths = append(cr.paths, r.URL.Path)
	cr.bodies = append(cr.bodies, decoded)

	status := cr.status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (cr *commandRecorder) calls() ([]string, []map[string]any) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return append([]string(nil), cr.paths...), append([]map[string]any(nil), cr.bodies...)
}

func TestStartWatering(t *testing.T) {
	rec := &commandRecorder{}
	client, _ := testClient(t, rec)

	err := client.StartWatering(context.Background(), "abc123", "v1", DefaultWateringDuration)
	if err != nil {
		t.Fatalf("StartWatering() error = %v", err)
	}

	paths, bodies := rec.calls()
	if len(paths) != 1 || paths[0] != "/valve/startWatering" {
		t.Fatalf("paths = %v, want exactly one /valve/startWatering", paths)
	}
	if got := bodies[0]["valveId"]; got != "v1" {
		t.Errorf("valveId = %v, want v1", got)
	}
	if got := bodies[0]["durationSeconds"]; got != float64(1800) {
		t.Errorf("durationSeconds = %v, want 1800", got)
	}
}

func TestStopWatering(t *testing.T) {
	rec := &commandRecorder{}
	client, _ := testClient(t, rec)

	if err := client.StopWatering(context.Background(), "abc123", "v1"); err != nil {
		t.Fatalf("StopWatering() error = %v", err)
	}

	paths, bodies := rec.calls()
	if len(paths) != 1 || paths[0] != "/valve/stopWatering" {
		t.Fatalf("paths = %v, want exactly one /valve/stopWatering", paths)
	}
	if got := bodies[0]["valveId"]; got != "v1" {
		t.Errorf("valveId = %v, want v1", got)
	}
	if _, hasDuration := bodies[0]["durationSeconds"]; hasDuration {
		t.Error("stop command must not carry a duration field")
	}
}

func TestStopWatering_AlreadyStopped(t *testing.T) {
	// The command is issued regardless of last known state; a vendor
	// rejection surfaces as ErrCommand and the caller decides.
	rec := &commandRecorder{status: http.StatusConflict}
	client, _ := testClient(t, rec)

	err := client.StopWatering(context.Background(), "abc123", "v1")
	if !errors.Is(err, ErrCommand) {
		t.Errorf("error = %v, want ErrCommand", err)
	}

	paths, _ := rec.calls()
	if len(paths) != 1 {
		t.Errorf("got %d calls, want 1", len(paths))
	}
}

func TestStartWatering_Rejected(t *testing.T) {
	rec := &commandRecorder{status: http.StatusNotFound}
	client, _ := testClient(t, rec)

	err := client.StartWatering(context.Background(), "abc123", "bogus", DefaultWateringDuration)
	if !errors.Is(err, ErrCommand) {
		t.Errorf("error = %v, want ErrCommand", err)
	}
}

func TestStartWatering_EmptyCredential(t *testing.T) {
	rec := &commandRecorder{}
	client, _ := testClient(t, rec)

	err := client.StartWatering(context.Background(), "", "v1", DefaultWateringDuration)
	if !errors.Is(err, ErrCommand) {
		t.Errorf("error = %v, want ErrCommand", err)
	}
	if paths, _ := rec.calls(); len(paths) != 0 {
		t.Error("missing credential must not issue an HTTP call")
	}
}
