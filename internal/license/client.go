package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/technosupport/slothunter/internal/fingerprint"
)

// ErrRemoteUnavailable covers network failures and non-JSON or 5xx replies.
var ErrRemoteUnavailable = errors.New("license service unavailable")

// ActivationError is a well-formed rejection from the activation endpoint.
type ActivationError struct {
	Message string
}

func (e *ActivationError) Error() string { return e.Message }

const DefaultTimeout = 10 * time.Second

// Client talks to the remote license service. It keeps no state.
type Client struct {
	base string
	http *http.Client
	now  func() time.Time
}

func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
}

// Activate exchanges a key and this device's fingerprints for tokens.
func (c *Client) Activate(ctx context.Context, key string, fp fingerprint.Pair) (*Activation, error) {
	body := activateRequest{
		LicenseKey:          key,
		BrowserFingerprint:  fp.Browser,
		HardwareFingerprint: fp.Hardware,
	}
	env, _, err := c.do(ctx, http.MethodPost, "/api/extension/activate", "", body)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "Activation failed"
		}
		return nil, &ActivationError{Message: msg}
	}

	var d activateData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return nil, fmt.Errorf("%w: decode activation: %v", ErrRemoteUnavailable, err)
	}
	return &Activation{
		License: License{
			Key:         key,
			PlanType:    d.PlanType,
			ExpiresAt:   d.ExpiresAt,
			ActivatedAt: c.now().UTC(),
		},
		Tokens: Tokens{AccessToken: d.AccessToken, RefreshToken: d.RefreshToken},
	}, nil
}

// Status is true iff the service answers 2xx with success and ACTIVE.
func (c *Client) Status(ctx context.Context, accessToken string) (bool, error) {
	env, code, err := c.do(ctx, http.MethodGet, "/api/licenses/status", accessToken, nil)
	if err != nil {
		return false, err
	}
	if code < 200 || code > 299 || !env.Success {
		return false, nil
	}
	var d statusData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return false, nil
	}
	return d.Status == "ACTIVE", nil
}

// LatestConfig fetches the remote configuration blob.
func (c *Client) LatestConfig(ctx context.Context, accessToken string) (*RemoteConfig, error) {
	env, code, err := c.do(ctx, http.MethodGet, "/api/config/latest", accessToken, nil)
	if err != nil {
		return nil, err
	}
	if code < 200 || code > 299 || !env.Success {
		return nil, fmt.Errorf("%w: config status %d", ErrRemoteUnavailable, code)
	}
	var d configData
	_ = json.Unmarshal(env.Data, &d)
	return &RemoteConfig{Version: d.Version, Data: env.Data, FetchedAt: c.now().UTC()}, nil
}

// Heartbeat reports liveness. Callers ignore its error.
func (c *Client) Heartbeat(ctx context.Context, accessToken string, p HeartbeatPayload) error {
	_, code, err := c.do(ctx, http.MethodPost, "/api/extension/heartbeat", accessToken, p)
	if err != nil {
		return err
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("%w: heartbeat status %d", ErrRemoteUnavailable, code)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (*envelope, int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return &env, resp.StatusCode, nil
		}
		return nil, resp.StatusCode, fmt.Errorf("%w: decode: %v", ErrRemoteUnavailable, err)
	}
	return &env, resp.StatusCode, nil
}
