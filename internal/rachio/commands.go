package rachio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultWateringDuration is the fixed run time for a start command.
// The vendor device enforces it; the bridge does not track completion.
const DefaultWateringDuration = 1800 // seconds (30 minutes)

// StartWatering tells the cloud to open a valve for durationSeconds.
//
// The side effect is physical and fire-and-forget: the bridge neither
// polls for completion nor enforces the duration locally. Returns
// ErrCommand if the cloud rejects the id or is unreachable.
func (c *Client) StartWatering(ctx context.Context, credential, valveID string, durationSeconds int) error {
	return c.put(ctx, credential, "/valve/startWatering", startWateringRequest{
		ValveID:         valveID,
		DurationSeconds: durationSeconds,
	})
}

// StopWatering tells the cloud to close a valve.
//
// Stopping an already-stopped valve is issued as-is; whether a vendor
// error for that case matters is the caller's decision.
func (c *Client) StopWatering(ctx context.Context, credential, valveID string) error {
	return c.put(ctx, credential, "/valve/stopWatering", stopWateringRequest{
		ValveID: valveID,
	})
}

// put performs an authenticated PUT with a JSON body.
// All failures surface as ErrCommand; the underlying cause is wrapped.
func (c *Client) put(ctx context.Context, credential, path string, body any) error {
	if credential == "" {
		return fmt.Errorf("%w: missing credential", ErrCommand)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %w", ErrCommand, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrCommand, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommand, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrCommand, resp.StatusCode)
	}
	return nil
}
