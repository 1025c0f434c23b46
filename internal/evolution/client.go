package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/viniciusxv27/enviomkt/internal/domain"
)

// Client talks to an Evolution API server. Every request carries the static apikey header.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client limited to 5 requests per second.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("evolution marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evolution %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("evolution read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("evolution API %s %s returned %d: %s", method, path, resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

// requestJSON decodes the response into generic JSON values. An empty body yields nil.
func (c *Client) requestJSON(ctx context.Context, method, path string, payload interface{}) (interface{}, error) {
	body, err := c.doRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("evolution parse %s: %w", path, err)
	}
	return parsed, nil
}

// --- Instance management ---

// CreateInstance registers a new Baileys instance that pairs through a QR code.
func (c *Client) CreateInstance(ctx context.Context, name, number string) error {
	payload := map[string]interface{}{
		"instanceName": name,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}
	if number != "" {
		payload["number"] = number
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/instance/create", payload)
	return err
}

func (c *Client) RestartInstance(ctx context.Context, name string) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/instance/restart/"+url.PathEscape(name), nil)
	return err
}

// LogoutInstance unpairs the phone but keeps the instance.
func (c *Client) LogoutInstance(ctx context.Context, name string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/instance/logout/"+url.PathEscape(name), nil)
	return err
}

func (c *Client) DeleteInstance(ctx context.Context, name string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/instance/delete/"+url.PathEscape(name), nil)
	return err
}

// RawInstances returns the undecoded-shape body of the instance list, for diagnostics.
func (c *Client) RawInstances(ctx context.Context) (interface{}, error) {
	return c.requestJSON(ctx, http.MethodGet, "/instance/fetchInstances", nil)
}

// Status resolves the display bucket of an instance. It never fails: unknown means disconnected.
func (c *Client) Status(ctx context.Context, name string) domain.InstanceStatus {
	bucket := DisplayStatus(c.ConnectionState(ctx, name))
	return domain.InstanceStatus{
		Status:    bucket,
		Connected: bucket == domain.StatusConnected,
	}
}

// InstanceStatus is Status plus a pairing QR code when the instance is not connected.
func (c *Client) InstanceStatus(ctx context.Context, name string) domain.InstanceStatus {
	st := c.Status(ctx, name)
	if !st.Connected {
		if qr, ok := c.QRCode(ctx, name); ok {
			st.QRCode = qr
		}
	}
	return st
}
