// Package dispatch forwards batch-send requests to the automation webhook.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const (
	DefaultTimeout = 60 * time.Second
	VideoTimeout   = 300 * time.Second
)

var (
	ErrTimeout   = errors.New("Tempo limite excedido ao enviar para o webhook")
	ErrTransport = errors.New("Erro de conexão com o webhook")
)

// Submitter posts dispatch payloads. There is no retry.
type Submitter struct {
	url          string
	httpClient   *http.Client
	timeout      time.Duration
	videoTimeout time.Duration
}

func NewSubmitter(url string) *Submitter {
	return &Submitter{
		url:          url,
		httpClient:   &http.Client{},
		timeout:      DefaultTimeout,
		videoTimeout: VideoTimeout,
	}
}

// WithTimeouts overrides the plain and video deadlines.
func (s *Submitter) WithTimeouts(plain, video time.Duration) *Submitter {
	s.timeout = plain
	s.videoTimeout = video
	return s
}

func (s *Submitter) URL() string {
	return s.url
}

// Submit posts the payload and returns the webhook status code.
// A non-2xx answer is logged but not an error.
func (s *Submitter) Submit(ctx context.Context, payload *domain.DispatchPayload) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal dispatch payload: %w", err)
	}

	timeout := s.timeout
	if payload.HaVideo {
		timeout = s.videoTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil && isTimeout(ctx, err) {
		return resp.StatusCode, ErrTimeout
	}

	entry := log.Component("dispatch").WithField("status", resp.StatusCode).WithField("leads", len(payload.Leads))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		entry.Warnf("webhook answered non-2xx: %s", string(body))
	} else {
		entry.Info("webhook accepted dispatch")
	}
	return resp.StatusCode, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
