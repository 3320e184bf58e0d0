package staffapi

// Package staffapi provides the HTTP adapter for the staff authorization backend.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/ports"
)

const (
	loginPath          = "/staff/login"
	mePath             = "/staff/me"
	changePasswordPath = "/staff/change-password"

	maxErrorBody = 4 << 10
)

// Config holds configuration for the staff backend client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // default 10s when zero
	UserAgent  string
	Mapping    IdentityMapping
	HTTPClient *http.Client // Optional, built from Timeout when nil
	Logger     *slog.Logger
}

// Client implements ports.AuthBackend over HTTP.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	mapping   IdentityMapping
	logger    *slog.Logger
}

var _ ports.AuthBackend = (*Client)(nil)

// NewClient constructs a staff backend client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("staff backend base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse staff backend URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("staff backend URL must be http(s), got %q", base.Scheme)
	}
	if err = cfg.Mapping.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "staffgate"
	}

	return &Client{
		base:      base,
		http:      httpClient,
		userAgent: ua,
		mapping:   cfg.Mapping.withDefaults(),
		logger:    logger,
	}, nil
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Login calls POST /staff/login.
func (c *Client) Login(ctx context.Context, login, password string) (domainauth.Credential, error) {
	body, err := json.Marshal(loginRequest{Login: login, Password: password})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}

	resp, err := c.send(ctx, requestSpec{method: http.MethodPost, path: loginPath, body: body})
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	if err = statusError(resp, true); err != nil {
		return "", err
	}

	var out loginResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("login response missing access_token: %w", domainauth.ErrRejected)
	}
	return domainauth.Credential(out.AccessToken), nil
}

// Me calls GET /staff/me. Any non-success response means the credential is invalid.
func (c *Client) Me(ctx context.Context, cred domainauth.Credential) (domainauth.Identity, error) {
	resp, err := c.send(ctx, requestSpec{method: http.MethodGet, path: mePath, cred: cred})
	if err != nil {
		return domainauth.Identity{}, err
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode >= 500 {
			return domainauth.Identity{}, fmt.Errorf("staff me: status %d: %w", resp.StatusCode, domainauth.ErrUnreachable)
		}
		return domainauth.Identity{}, fmt.Errorf("staff me: status %d: %w", resp.StatusCode, domainauth.ErrRejected)
	}

	var payload any
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domainauth.Identity{}, fmt.Errorf("decode identity: %w", errors.Join(err, domainauth.ErrRejected))
	}
	decoded, err := c.mapping.decode(payload)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("map identity: %w", errors.Join(err, domainauth.ErrRejected))
	}
	if len(decoded.Unknown) > 0 {
		c.logger.WarnContext(ctx, "dropping permission codes outside catalog",
			"login", decoded.Identity.Login,
			"codes", decoded.Unknown,
		)
	}
	return decoded.Identity, nil
}

// ChangePassword calls POST /staff/change-password.
func (c *Client) ChangePassword(ctx context.Context, cred domainauth.Credential, in ports.ChangePasswordInput) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal change password: %w", err)
	}
	resp, err := c.send(ctx, requestSpec{method: http.MethodPost, path: changePasswordPath, cred: cred, body: body})
	if err != nil {
		return err
	}
	defer closeBody(resp)
	return statusError(resp, false)
}

// Do forwards req to the staff backend, rewriting its URL onto the base URL and
// replacing any Authorization header with cred. The caller closes the body.
func (c *Client) Do(ctx context.Context, cred domainauth.Credential, req *http.Request) (*http.Response, error) {
	if err := guardCredential(cred); err != nil {
		return nil, err
	}
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.URL = c.endpoint(req.URL.Path)
	out.URL.RawQuery = req.URL.RawQuery
	out.Host = ""
	c.decorate(out, cred)

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, fmt.Errorf("staff backend %s %s: %w", req.Method, req.URL.Path, errors.Join(err, domainauth.ErrUnreachable))
	}
	return resp, nil
}

// endpoint resolves path against the base URL. The result is always rooted,
// since the transport writes URL.Path verbatim into the request line.
func (c *Client) endpoint(path string) *url.URL {
	u := c.base.JoinPath(path)
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u
}

type requestSpec struct {
	method string
	path   string
	cred   domainauth.Credential
	body   []byte
}

func (c *Client) send(ctx context.Context, spec requestSpec) (*http.Response, error) {
	if err := guardCredential(spec.cred); err != nil {
		return nil, err
	}

	var body io.Reader
	if spec.body != nil {
		body = bytes.NewReader(spec.body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.method, c.endpoint(spec.path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(req, spec.cred)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("staff backend %s %s: %w", spec.method, spec.path, errors.Join(err, domainauth.ErrUnreachable))
	}
	return resp, nil
}

func (c *Client) decorate(req *http.Request, cred domainauth.Credential) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Del("Authorization")
	req.Header.Del("Cookie")
	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+string(cred))
	}
}

// guardCredential keeps the demo sentinel off the wire.
func guardCredential(cred domainauth.Credential) error {
	if cred.IsDemo() {
		return domainauth.ErrDemoCredential
	}
	return nil
}

// statusError maps a backend response onto the error taxonomy.
// For login, 400 is a credential rejection rather than a malformed request.
func statusError(resp *http.Response, login bool) error {
	code := resp.StatusCode
	if code >= 200 && code <= 299 {
		return nil
	}
	msg := readErrorMessage(resp.Body)
	var kind error
	switch {
	case code >= 500:
		kind = domainauth.ErrUnreachable
	case code == http.StatusNotFound:
		kind = domainauth.ErrNotFound
	case code == http.StatusUnauthorized:
		kind = domainauth.ErrRejected
	case code == http.StatusForbidden:
		kind = domainauth.ErrForbidden
	case login:
		kind = domainauth.ErrRejected
	default:
		return &BackendError{Status: code, Message: msg}
	}
	return errors.Join(kind, &BackendError{Status: code, Message: msg})
}

// BackendError carries the status and message of a failed backend response.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("staff backend status %d", e.Status)
	}
	return fmt.Sprintf("staff backend status %d: %s", e.Status, e.Message)
}

// HTTPStatus returns the backend status code.
func (e *BackendError) HTTPStatus() int { return e.Status }

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
