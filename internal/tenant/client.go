// Package tenant provides authenticated access to an organization's own
// data store, scoped to the dedicated application schema.
package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
	"github.com/tuttiud/platform/internal/models"
)

const (
	// Schema is the dedicated application schema inside a tenant store.
	// The store's default/shared schema is permanently off-limits.
	Schema = "tuttiud"

	// DefaultTimeout is the default HTTP timeout for tenant-store calls.
	DefaultTimeout = 30 * time.Second

	rpcSetupStatus    = "tuttiud_setup_status"
	rpcSetupBootstrap = "tuttiud_setup_bootstrap"
	rpcDiagnostics    = "tuttiud_run_diagnostics"

	// missingFunctionCode is the PostgREST error code for "function not
	// found in schema cache", meaning the tenant-side RPC was never deployed.
	missingFunctionCode = "PGRST202"
)

// API is the tenant-store surface used by the setup gateway and the
// record passthroughs.
type API interface {
	Initialize(ctx context.Context) error
	SchemaExists(ctx context.Context) (bool, error)
	Bootstrap(ctx context.Context) error
	RunDiagnostics(ctx context.Context) (*models.DiagnosticsReport, error)
	Select(ctx context.Context, table string, query url.Values) (json.RawMessage, error)
	Insert(ctx context.Context, table string, body any) (json.RawMessage, error)
}

// Observer receives a timing sample for every tenant-store call. A nil
// Observer disables sampling.
type Observer interface {
	ObserveTenantRPC(procedure string, seconds float64)
}

// Client talks to a tenant store's REST interface using the organization's
// application credential. Every request carries schema profile headers so
// reads and writes stay inside the dedicated schema.
type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client
	observer   Observer
	logger     zerolog.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a Client for the given store URL and credential.
func NewClient(storeURL, credential string, observer Observer, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:    strings.TrimRight(storeURL, "/"),
		credential: credential,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
		observer: observer,
		logger:   logger.With().Str("component", "tenant_client").Logger(),
	}
}

// Initialize performs a connectivity check against the tenant store by
// invoking the setup-status procedure and discarding its result.
func (c *Client) Initialize(ctx context.Context) error {
	return c.rpc(ctx, rpcSetupStatus, nil, nil)
}

// SchemaExists reports whether the dedicated schema has been provisioned.
func (c *Client) SchemaExists(ctx context.Context) (bool, error) {
	var result struct {
		SchemaExists bool `json:"schema_exists"`
	}
	if err := c.rpc(ctx, rpcSetupStatus, nil, &result); err != nil {
		return false, err
	}
	return result.SchemaExists, nil
}

// Bootstrap runs the idempotent tenant-side provisioning procedure. The
// procedure uses create-if-not-exists patterns, so re-running is safe.
func (c *Client) Bootstrap(ctx context.Context) error {
	return c.rpc(ctx, rpcSetupBootstrap, nil, nil)
}

// RunDiagnostics invokes the tenant-side diagnostics procedure.
func (c *Client) RunDiagnostics(ctx context.Context) (*models.DiagnosticsReport, error) {
	var report models.DiagnosticsReport
	if err := c.rpc(ctx, rpcDiagnostics, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Select reads rows from a table in the dedicated schema.
func (c *Client) Select(ctx context.Context, table string, query url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept-Profile", Schema)

	return c.do(req, table)
}

// Insert writes rows into a table in the dedicated schema and returns the
// stored representation.
func (c *Client) Insert(ctx context.Context, table string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/"+table, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Profile", Schema)
	req.Header.Set("Prefer", "return=representation")

	return c.do(req, table)
}

// rpc invokes a stored procedure via the REST RPC endpoint.
func (c *Client) rpc(ctx context.Context, fn string, args any, out any) error {
	payload := []byte("{}")
	if args != nil {
		var err error
		payload, err = json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal rpc args: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+fn, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Profile", Schema)

	body, err := c.do(req, fn)
	if err != nil {
		return err
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return apperr.Wrap(apperr.KindUnknownUpstream, "unexpected response from tenant store", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.credential)
	req.Header.Set("Authorization", "Bearer "+c.credential)
}

func (c *Client) do(req *http.Request, operation string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observer != nil {
		c.observer.ObserveTenantRPC(operation, time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("operation", operation).Msg("tenant store unreachable")
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "tenant store unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "read tenant store response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	if isMissingFunction(resp.StatusCode, body) {
		return nil, apperr.New(apperr.KindMissingFunction, "tenant setup procedure is not installed").
			WithDetail(string(body))
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("operation", operation).
		Msg("tenant store request failed")
	return nil, apperr.New(apperr.KindUnknownUpstream,
		fmt.Sprintf("tenant store returned status %d", resp.StatusCode)).
		WithDetail(string(body))
}

// isMissingFunction detects the "procedure not deployed" condition, which
// the wizard surfaces as "run the setup script" instead of a hard failure.
func isMissingFunction(status int, body []byte) bool {
	if status != http.StatusNotFound {
		return false
	}
	var perr struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &perr); err != nil {
		return false
	}
	return perr.Code == missingFunctionCode
}
