package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/metrics"
	"github.com/netops-tools/sastre/pkg/types"
)

const (
	defaultTimeout = 300 * time.Second

	loginPath  = "j_security_check"
	logoutPath = "logout"
	serverPath = "client/server"
	tenantPath = "tenant"
)

// Config holds controller connection settings.
type Config struct {
	BaseURL  string // e.g. https://vmanage.example.com:8443
	Username string
	Password string
	Tenant   string        // optional, multi-tenant deployments only
	Timeout  time.Duration // per-request deadline, default 300s
	// VerifyTLS enables server certificate verification. Controllers
	// frequently ship self-signed certificates, so verification is off
	// unless explicitly requested.
	VerifyTLS bool
}

// Client maintains one authenticated session to one controller.
type Client struct {
	baseURL     string
	timeout     time.Duration
	hc          *http.Client
	serverFacts map[string]any
	xsrfToken   string
	sessionID   string // VSessionId header for tenant scope
	logger      zerolog.Logger
}

// NewClient creates a client and logs in to the controller. The session
// cookie and CSRF token (19.2 onwards) are held for the client's lifetime.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Username == "" {
		return nil, fmt.Errorf("%w: controller address and user are required", types.ErrInvalidArg)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS} // #nosec G402

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		hc: &http.Client{
			Jar:       jar,
			Transport: transport,
		},
		logger: log.WithComponent("rest"),
	}

	if err := c.login(ctx, cfg.Username, cfg.Password); err != nil {
		return nil, err
	}
	if cfg.Tenant != "" {
		if err := c.setTenant(ctx, cfg.Tenant); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// login posts the credential form and retrieves server facts. The
// controller answers a failed login with an HTML page rather than an error
// status.
func (c *Client) login(ctx context.Context, username, password string) error {
	form := url.Values{
		"j_username": {username},
		"j_password": {password},
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.baseURL+"/"+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login to %s: %v", types.ErrConnection, c.baseURL, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("%w: reading login response: %v", types.ErrConnection, err)
	}
	if resp.StatusCode != http.StatusOK || bytes.Contains(body, []byte("<html>")) {
		return fmt.Errorf("%w: login to %s rejected, check credentials", types.ErrAuth, c.baseURL)
	}

	facts, err := c.GetJSON(ctx, serverPath)
	if err != nil {
		return fmt.Errorf("could not retrieve controller server information: %w", err)
	}
	data, _ := facts["data"].(map[string]any)
	if data == nil {
		return fmt.Errorf("%w: controller server information missing", types.ErrConnection)
	}
	c.serverFacts = data

	if token, ok := data["CSRFToken"].(string); ok {
		c.xsrfToken = token
	}
	return nil
}

// setTenant switches the session to tenant scope, deriving the VSessionId
// header from the tenant name.
func (c *Client) setTenant(ctx context.Context, tenant string) error {
	reply, err := c.GetJSON(ctx, tenantPath)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}
	for _, entry := range dataList(reply) {
		if entry["name"] == tenant || entry["orgName"] == tenant {
			id, _ := entry["tenantId"].(string)
			session, err := c.PostJSON(ctx, fmt.Sprintf("tenant/%s/vsessionid", id), nil)
			if err != nil {
				return fmt.Errorf("acquiring tenant session: %w", err)
			}
			c.sessionID, _ = session["VSessionId"].(string)
			return nil
		}
	}
	return fmt.Errorf("%w: tenant %q not found", types.ErrInvalidArg, tenant)
}

// Close drops the transport without logging out: on 19.3 controllers a
// logout de-authorizes every session from the same source address.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}

// ServerVersion returns the controller platform version.
func (c *Client) ServerVersion() string {
	v, _ := c.serverFacts["platformVersion"].(string)
	return v
}

// ServerFacts returns the raw server information map.
func (c *Client) ServerFacts() map[string]any {
	return c.serverFacts
}

// GetJSON performs a GET of a dataservice path and decodes the JSON reply.
func (c *Client) GetJSON(ctx context.Context, path string) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodGet, path, nil)
}

// GetText performs a GET and returns the raw reply body. Device
// configuration endpoints answer with plain text rather than JSON.
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	raw, err := c.do(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GetData performs a GET and unwraps the conventional "data" list envelope.
func (c *Client) GetData(ctx context.Context, path string) ([]map[string]any, error) {
	reply, err := c.GetJSON(ctx, path)
	if err != nil {
		return nil, err
	}
	return dataList(reply), nil
}

// PostJSON performs a POST with a JSON body. Controllers may answer POST
// with an empty body; a nil map is returned in that case.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

// PutJSON performs a PUT with a JSON body.
func (c *Client) PutJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.doJSON(ctx, http.MethodPut, path, body)
}

// Delete removes the resource at path/key.
func (c *Client) Delete(ctx context.Context, path, key string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, strings.TrimRight(path, "/")+"/"+url.PathEscape(key), nil)
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
	}

	raw, err := c.do(ctx, method, c.url(path), payload)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		// A few endpoints reply with a bare JSON list
		var list []map[string]any
		if lerr := json.Unmarshal(raw, &list); lerr == nil {
			return map[string]any{"data": anyList(list)}, nil
		}
		return nil, fmt.Errorf("decoding %s %s reply: %w", method, path, err)
	}
	return reply, nil
}

// do runs one request with the retry policy applied: up to 5 attempts on
// 429 with capped exponential backoff, up to 3 attempts on transient
// transport errors with linear backoff. Authorization failures are
// surfaced immediately.
func (c *Client) do(ctx context.Context, method, fullURL string, payload []byte) ([]byte, error) {
	netAttempts := 0
	rateAttempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		raw, status, err := c.roundTrip(ctx, method, fullURL, payload)
		metrics.APIRequestDuration.Observe(time.Since(start).Seconds())

		switch {
		case err != nil:
			netAttempts++
			metrics.APIRetriesTotal.WithLabelValues("transport").Inc()
			if netAttempts >= transientMaxAttempts {
				return nil, fmt.Errorf("%w: %s %s: %v", types.ErrConnection, method, fullURL, err)
			}
			c.logger.Warn().Err(err).Str("method", method).Int("attempt", netAttempts).
				Msg("transient request failure, retrying")
			if serr := sleepCtx(ctx, linearBackoff(netAttempts)); serr != nil {
				return nil, serr
			}
			continue

		case status == http.StatusTooManyRequests:
			rateAttempts++
			metrics.APIRetriesTotal.WithLabelValues("rate-limit").Inc()
			if rateAttempts >= rateLimitMaxAttempts {
				return nil, fmt.Errorf("%w: %s %s", types.ErrRateLimited, method, fullURL)
			}
			delay := expBackoff(rateAttempts)
			c.logger.Warn().Str("method", method).Dur("delay", delay).Int("attempt", rateAttempts).
				Msg("rate limited by controller, backing off")
			if serr := sleepCtx(ctx, delay); serr != nil {
				return nil, serr
			}
			continue

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, fmt.Errorf("%w: %s %s (%d)", types.ErrAuth, method, fullURL, status)

		case status == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s %s", types.ErrNotFound, method, fullURL)

		case status == http.StatusConflict:
			return nil, fmt.Errorf("%w: %s %s: %s", types.ErrConflict, method, fullURL, errorMessage(raw))

		case status >= 400:
			return nil, fmt.Errorf("%s (%d): %s [%s %s]",
				http.StatusText(status), status, errorMessage(raw), method, fullURL)

		default:
			return raw, nil
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, fullURL string, payload []byte) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, body)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.xsrfToken != "" && method != http.MethodGet {
		req.Header.Set("X-XSRF-TOKEN", c.xsrfToken)
	}
	if c.sessionID != "" {
		req.Header.Set("VSessionId", c.sessionID)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + "/dataservice/" + strings.TrimLeft(path, "/")
}

// errorMessage extracts the controller error message from a reply body.
func errorMessage(raw []byte) string {
	var reply struct {
		Error struct {
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil || reply.Error.Message == "" {
		return "unspecified error message"
	}
	if reply.Error.Details != "" {
		return reply.Error.Message + ": " + reply.Error.Details
	}
	return reply.Error.Message
}

func dataList(reply map[string]any) []map[string]any {
	if reply == nil {
		return nil
	}
	rawList, _ := reply["data"].([]any)
	list := make([]map[string]any, 0, len(rawList))
	for _, entry := range rawList {
		if m, ok := entry.(map[string]any); ok {
			list = append(list, m)
		}
	}
	return list
}

func anyList(list []map[string]any) []any {
	out := make([]any, len(list))
	for i, m := range list {
		out[i] = m
	}
	return out
}
