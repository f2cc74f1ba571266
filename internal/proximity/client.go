package proximity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BeaconResult is the proximity check response from the verification
// microservice.
type BeaconResult struct {
	Present    bool   `json:"present"`
	RSSI       int    `json:"rssi_mode"`
	Threshold  int    `json:"threshold"`
	Confidence string `json:"confidence"`
	Message    string `json:"message"`
}

// ConfirmResult is the identity-confirmation response.
type ConfirmResult struct {
	Verified   bool    `json:"verified"`
	Similarity float64 `json:"similarity"`
	Threshold  float64 `json:"threshold"`
}

// Client calls the verification microservice for beacon proximity and
// identity confirmation. With Skip set it short-circuits both checks to
// success, for environments without the service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a bounded timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CheckBeacon asks whether the session's classroom beacon is observable from
// the student's device.
func (c *Client) CheckBeacon(ctx context.Context, sessionID string) (BeaconResult, error) {
	if c.Skip {
		return BeaconResult{Present: true, Confidence: "skipped"}, nil
	}
	var res BeaconResult
	err := c.post(ctx, "/bluetooth/verify", map[string]string{"session_id": sessionID}, &res)
	return res, err
}

// BeaconPresent is the boolean view of CheckBeacon used by the verification
// gate.
func (c *Client) BeaconPresent(ctx context.Context, sessionID string) (bool, error) {
	res, err := c.CheckBeacon(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return res.Present, nil
}

// ConfirmIdentity runs the final identity check against the captured proof
// (an uploaded image URL).
func (c *Client) ConfirmIdentity(ctx context.Context, studentID, proof string) (bool, error) {
	if c.Skip {
		return true, nil
	}
	var res ConfirmResult
	err := c.post(ctx, "/face/verify", map[string]string{
		"user_id":   studentID,
		"image_url": proof,
	}, &res)
	if err != nil {
		return false, err
	}
	return res.Verified, nil
}

// Health pings the service.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verification service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("verification service %s: %s: %s", path, resp.Status, data)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
