// Package remote is the device-side HTTP client of the remote application service.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/atinyakov/FarmCredit/internal/models"
)

var (
	// ErrUnavailable means the service could not be reached at all: the
	// connection was refused, the host did not resolve or TLS verification failed.
	ErrUnavailable = errors.New("remote service unavailable")
	// ErrRequestFailed means a connection was possible but this request got no
	// response, for example because it timed out.
	ErrRequestFailed = errors.New("remote request failed")
	// ErrRemoteRejected means the service answered with a non-success status.
	ErrRemoteRejected = errors.New("remote service rejected request")
)

// StatusError carries a non-success HTTP response. It matches
// ErrRemoteRejected and, depending on Code, the model error it represents.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("remote service: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("remote service: %d %s: %s", e.Code, http.StatusText(e.Code), body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRemoteRejected:
		return true
	case models.ErrNotFound:
		return e.Code == http.StatusNotFound
	case models.ErrInvalidTransition:
		return e.Code == http.StatusConflict
	case models.ErrValidation:
		return e.Code == http.StatusBadRequest
	}
	return false
}

// NewHTTPClient returns an HTTP client with a per-request timeout. When caFile
// is set, server certificates are verified against it instead of the system pool.
func NewHTTPClient(caFile string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA cert")
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: caPool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Client talks to the remote application service.
type Client struct {
	http    *http.Client
	baseURL string
}

// New returns a Client for the service rooted at baseURL.
func New(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Deliver replays one outbox entry. A nil error is an acknowledgement.
func (c *Client) Deliver(ctx context.Context, entry models.OutboxEntry) error {
	return c.do(ctx, entry.Method, entry.Resource, bytes.NewReader(entry.Body), nil)
}

// ListApplications fetches the authoritative application list.
func (c *Client) ListApplications(ctx context.Context) ([]models.Application, error) {
	var apps []models.Application
	if err := c.do(ctx, http.MethodGet, models.ResourceApplications, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// CreateOrReplaceApplication upserts app by id and returns the stored record.
func (c *Client) CreateOrReplaceApplication(ctx context.Context, app models.Application) (*models.Application, error) {
	body, err := json.Marshal(app)
	if err != nil {
		return nil, fmt.Errorf("encode application: %w", err)
	}
	var stored models.Application
	if err := c.do(ctx, http.MethodPost, models.ResourceApplications, bytes.NewReader(body), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdateStatus applies a decision and/or message to application id.
// It is never retried: a repeated call with a message appends a duplicate.
func (c *Client) UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) (*models.Application, error) {
	body, err := json.Marshal(upd)
	if err != nil {
		return nil, fmt.Errorf("encode status update: %w", err)
	}
	var stored models.Application
	path := models.ResourceApplications + "/" + url.PathEscape(id) + "/status"
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Health reports whether the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isConnectionFailure(err) {
			return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// isConnectionFailure reports whether err happened before a request could be
// sent, which means every other request would fail the same way.
func isConnectionFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
