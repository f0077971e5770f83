package rachio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the production vendor cloud endpoint.
	DefaultBaseURL = "https://api.rach.io"

	// defaultTimeout bounds a single request when the caller supplies
	// no timeout of its own.
	defaultTimeout = 15 * time.Second

	// maxResponseBody caps how much of a response we are willing to
	// read. Catalog responses are small; anything larger is broken.
	maxResponseBody = 1 << 20 // 1MB
)

// Client is the HTTP client for the Rachio cloud API.
//
// It is stateless apart from its configuration: credentials are passed
// into every call, never stored. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the given base URL.
// An empty baseURL selects the production endpoint. A zero timeout
// selects the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// PersonInfo resolves the account owner for a credential.
//
// Returns ErrAuth for an empty or rejected credential, ErrTransport on
// network or server failure, ErrMalformedResponse if the payload does
// not carry an id.
func (c *Client) PersonInfo(ctx context.Context, credential string) (PersonInfo, error) {
	var info PersonInfo
	if err := c.get(ctx, credential, "/1/public/person/info", &info); err != nil {
		return PersonInfo{}, err
	}
	if info.ID == "" {
		return PersonInfo{}, fmt.Errorf("%w: person info has no id", ErrMalformedResponse)
	}
	return info, nil
}

// ListBaseStations returns the base stations owned by a user.
// An empty list is valid: a user with no hardware.
func (c *Client) ListBaseStations(ctx context.Context, credential, userID string) ([]BaseStation, error) {
	var resp baseStationsResponse
	path := "/valve/listBaseStations/" + userID
	if err := c.get(ctx, credential, path, &resp); err != nil {
		return nil, err
	}
	return resp.BaseStations, nil
}

// ListValves returns the valves behind a base station.
// An empty list is valid: a station with no valves attached.
func (c *Client) ListValves(ctx context.Context, credential, stationID string) ([]Valve, error) {
	var resp valvesResponse
	path := "/valve/listValves/" + stationID
	if err := c.get(ctx, credential, path, &resp); err != nil {
		return nil, err
	}
	return resp.Valves, nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, credential, path string, out any) error {
	if credential == "" {
		return fmt.Errorf("%w: missing credential", ErrAuth)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// checkStatus maps an HTTP status to the package error taxonomy.
func checkStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, status)
	default:
		return fmt.Errorf("%w: status %d", ErrTransport, status)
	}
}
