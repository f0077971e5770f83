package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/WVandergrift/rachio-bridge/internal/device"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/config"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/logging"
	"github.com/WVandergrift/rachio-bridge/internal/rachio"
	"github.com/WVandergrift/rachio-bridge/internal/valve"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"
const testAdminPassword = "hunter2-but-longer"

// mockService is a scriptable CredentialService.
type mockService struct {
	mu         sync.Mutex
	credential string
	updateErr  error
	updates    []string
	syncs      int
}

func (m *mockService) Credential() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential
}

func (m *mockService) UpdateCredential(_ context.Context, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.credential = credential
	m.updates = append(m.updates, credential)
	return nil
}

func (m *mockService) Sync(context.Context) {
	m.mu.Lock()
	m.syncs++
	m.mu.Unlock()
}

// mockCommander records valve commands issued through facades.
type mockCommander struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	starts   []struct {
		valveID  string
		duration int
	}
	stops []string
}

func (c *mockCommander) StartWatering(_ context.Context, valveID string, durationSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.starts = append(c.starts, struct {
		valveID  string
		duration int
	}{valveID, durationSeconds})
	return nil
}

func (c *mockCommander) StopWatering(_ context.Context, valveID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopErr != nil {
		return c.stopErr
	}
	c.stops = append(c.stops, valveID)
	return nil
}

// setupTestDB opens a throwaway SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'irrigation-valve',
			station_id TEXT NOT NULL DEFAULT '',
			capabilities TEXT NOT NULL DEFAULT '["on_off"]',
			state TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`)
	if err != nil {
		t.Fatalf("creating devices table: %v", err)
	}
	return db
}

type apiFixture struct {
	server    *Server
	handler   http.Handler
	registry  *device.Registry
	service   *mockService
	commander *mockCommander
}

// newAPIFixture builds a server over a real SQLite-backed registry and
// returns its router for httptest-driven requests.
func newAPIFixture(t *testing.T, devices ...device.Device) *apiFixture {
	t.Helper()

	repo := device.NewSQLiteRepository(setupTestDB(t))
	registry := device.NewRegistry(repo)
	if len(devices) > 0 {
		if err := registry.Apply(context.Background(), device.Batch{Adds: devices}); err != nil {
			t.Fatalf("seeding registry: %v", err)
		}
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	service := &mockService{}
	commander := &mockCommander{}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
			AdminPassword: testAdminPassword,
		},
		Logger:   log,
		Registry: registry,
		Provider: valve.NewProvider(commander),
		Service:  service,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &apiFixture{
		server:    srv,
		handler:   srv.buildRouter(),
		registry:  registry,
		service:   service,
		commander: commander,
	}
}

func testValve(id, name string) device.Device {
	return device.NewValveDevice(id, name, "station-a", time.Now().UTC())
}

// login performs a login and returns the bearer token.
func (f *apiFixture) login(t *testing.T) string {
	t.Helper()

	body := fmt.Sprintf(`{"username":"admin","password":%q}`, testAdminPassword)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling login response: %v", err)
	}
	return resp.AccessToken
}

// request performs an authenticated request against the router.
func (f *apiFixture) request(t *testing.T, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, testValve("valve-1", "Front Lawn"))

	rec := f.request(t, "", http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["devices"] != float64(1) {
		t.Errorf("devices = %v, want 1", resp["devices"])
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, "", http.MethodPost, "/api/v1/auth/login",
		`{"username":"admin","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_Required(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, "", http.MethodGet, "/api/v1/devices/", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	rec = f.request(t, "not-a-jwt", http.MethodGet, "/api/v1/devices/", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestListDevices(t *testing.T) {
	f := newAPIFixture(t, testValve("valve-1", "Front Lawn"), testValve("valve-2", "Back Lawn"))
	token := f.login(t)

	rec := f.request(t, token, http.MethodGet, "/api/v1/devices/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if resp.Count != 2 || len(resp.Devices) != 2 {
		t.Errorf("count = %d devices = %d, want 2/2", resp.Count, len(resp.Devices))
	}
}

func TestGetDevice(t *testing.T) {
	f := newAPIFixture(t, testValve("valve-1", "Front Lawn"))
	token := f.login(t)

	rec := f.request(t, token, http.MethodGet, "/api/v1/devices/valve-1/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = f.request(t, token, http.MethodGet, "/api/v1/devices/ghost/", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", rec.Code)
	}
}

func TestDeviceOn_DefaultDuration(t *testing.T) {
	f := newAPIFixture(t, testValve("valve-1", "Front Lawn"))
	token := f.login(t)

	rec := f.request(t, token, http.MethodPost, "/api/v1/devices/valve-1/on", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if len(f.commander.starts) != 1 {
		t.Fatalf("starts = %d, want 1", len(f.commander.starts))
	}
	if got := f.commander.starts[0]; got.valveID != "valve-1" || got.duration != 1800 {
		t.Errorf("start = %+v, want valve-1 / 1800", got)
	}
}

func TestDeviceOn_CustomDuration(t *testing.T) {
	f := newAPIFixture(t, testValve("valve-1", "Front Lawn"))
	token := f.login(t)

	rec := f.request(t, token, http.MethodPost, "/api/v1/devices/valve-1/on",
		`{"duration_seconds":600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := f.commander.starts[0].duration; got != 600 {
		t.Errorf("duration = %d, want 600", got)
	}

	rec = f.request(t, token, http.MethodPost, "/api/v1/devices/valve-1/on",
		`{"duration_seconds":-5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative duration status = %d, want 400", rec.Code)
	}
}

func TestDeviceOff(t *testing.T) {
	f := newAPIFixture(t, testValve("valve-1", "Front Lawn"))
	token := f.login(t)

	rec := f.request(t, token, http.MethodPost, "/api/v1/devices/valve-1/off", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(f.commander.stops) != 1 || f.commander.stops[0] != "valve-1" {
		t.Errorf("stops = %v, want [valve-1]", f.commander.stops)
	}
}

func TestDeviceCommand_CloudFailure(t *testing.T) {
	f := newAPIFixture(t, testValve("valve-1", "Front Lawn"))
	f.commander.startErr = fmt.Errorf("starting watering: %w", rachio.ErrCommand)
	token := f.login(t)

	rec := f.request(t, token, http.MethodPost, "/api/v1/devices/valve-1/on", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestDeviceCommand_UnknownDevice(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	rec := f.request(t, token, http.MethodPost, "/api/v1/devices/ghost/on", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(f.commander.starts) != 0 {
		t.Error("command for unknown device reached the commander")
	}
}

func TestPutCredential(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	rec := f.request(t, token, http.MethodPut, "/api/v1/settings/credential",
		`{"api_key":"new-secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(f.service.updates) != 1 || f.service.updates[0] != "new-secret" {
		t.Errorf("updates = %v, want [new-secret]", f.service.updates)
	}
}

func TestPutCredential_PersistFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.service.updateErr = errors.New("disk full")
	token := f.login(t)

	rec := f.request(t, token, http.MethodPut, "/api/v1/settings/credential",
		`{"api_key":"new-secret"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetCredential_Masked(t *testing.T) {
	f := newAPIFixture(t)
	f.service.credential = "super-secret-key-1234"
	token := f.login(t)

	rec := f.request(t, token, http.MethodGet, "/api/v1/settings/credential", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var status credentialStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if !status.Configured {
		t.Error("configured = false, want true")
	}
	if status.Hint != "...1234" {
		t.Errorf("hint = %q, want ...1234", status.Hint)
	}

	body := rec.Body.String()
	if bytes.Contains([]byte(body), []byte("super-secret-key")) {
		t.Errorf("response leaks the credential: %s", body)
	}
}

func TestSync(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	rec := f.request(t, token, http.MethodPost, "/api/v1/discovery/sync", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.service.syncs != 1 {
		t.Errorf("syncs = %d, want 1", f.service.syncs)
	}
}

func TestWSTicket(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	rec := f.request(t, token, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if resp.Ticket == "" {
		t.Error("ticket is empty")
	}

	if !f.server.tickets.validate(resp.Ticket) {
		t.Error("freshly issued ticket failed validation")
	}
	if f.server.tickets.validate(resp.Ticket) {
		t.Error("ticket validated twice, want single use")
	}
}
