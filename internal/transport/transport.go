// Package transport posts a request body to the stats collector exactly once.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a whole request, including reading the response.
const DefaultTimeout = 30 * time.Second

const (
	HeaderContentType   = "Content-Type"
	HeaderAPIKey        = "X-Api-Key"
	HeaderBatchID       = "batchId"
	HeaderCorrelationID = "X-Correlation-ID"

	maxResponseBytes = 1 << 20
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// Request is one submission attempt. Empty header fields are not sent.
type Request struct {
	Body          []byte
	APIKey        string
	BatchID       string
	CorrelationID string
}

// Response is what a successful (2xx) attempt yields. BatchID is empty when
// the collector did not return a decodable one.
type Response struct {
	StatusCode int
	BatchID    string
}

// StatusError reports a non-2xx reply. It matches ErrUnexpectedStatus.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d", e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

type Config struct {
	Endpoint           string
	Timeout            time.Duration // optional, defaults to DefaultTimeout
	InsecureSkipVerify bool
	HTTPClient         *http.Client // optional, overrides Timeout and InsecureSkipVerify
	Logger             zerolog.Logger
}

type Client struct {
	endpoint string
	http     *http.Client
	log      zerolog.Logger
}

func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		}
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     client,
		log:      cfg.Logger,
	}
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Post sends req once. Any transport failure or non-2xx status is returned
// as an error; there is no retry.
func (c *Client) Post(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set(HeaderContentType, "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set(HeaderAPIKey, req.APIKey)
	}
	if req.BatchID != "" {
		httpReq.Header.Set(HeaderBatchID, req.BatchID)
	}
	if req.CorrelationID != "" {
		httpReq.Header.Set(HeaderCorrelationID, req.CorrelationID)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("post stats: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if readErr != nil {
		return Response{}, fmt.Errorf("read response: %w", readErr)
	}

	out := Response{StatusCode: resp.StatusCode}
	var decoded struct {
		BatchID string `json:"batchId"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			c.log.Debug().Err(err).Msg("response body carries no batch id")
		} else {
			out.BatchID = decoded.BatchID
		}
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Str("correlation", req.CorrelationID).
		Msg("stats posted")
	return out, nil
}
