// Package forge wraps the source-hosting API: idempotent repository
// creation, license injection, atomic multi-file commits and static-site
// activation.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
)

// Client is a thin GitHub REST client scoped to a single account.
type Client struct {
	httpClient *http.Client
	apiURL     string
	baseURL    string
	token      string
	owner      string
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Token      string
	Owner      string
	APIURL     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a GitHub client for the configured account.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Token == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "github client requires a token")
	}
	if opts.Owner == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "github client requires an account name")
	}
	c := &Client{
		httpClient: opts.HTTPClient,
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		owner:      opts.Owner,
	}
	if c.apiURL == "" {
		c.apiURL = "https://api.github.com"
	}
	if c.baseURL == "" {
		c.baseURL = "https://github.com"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c, nil
}

// Owner returns the configured account name.
func (c *Client) Owner() string { return c.owner }

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	u := c.apiURL + endpoint

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CategoryForge, "marshal request body")
		}
		reader = strings.NewReader(string(jsonBody))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryForge, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "AppForge/1.0")
	return req, nil
}

// doRequest executes the request and decodes the JSON response into
// result (when non-nil). Status codes are classified: 404 becomes a
// not-found signal, other 4xx are permanent, 5xx and transport errors
// stay retryable.
func (c *Client) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryNetwork, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus(resp.StatusCode, fmt.Sprintf("%s %s: %s: %s",
			req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(snippet))))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return apperrors.Wrap(err, apperrors.CategoryForge, "decode %s response", req.URL.Path)
		}
	}
	return nil
}

func classifyStatus(status int, msg string) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound("%s", msg)
	case status >= 400 && status < 500:
		return apperrors.New(apperrors.CategoryForge, "%s", msg).AsPermanent()
	default:
		return apperrors.New(apperrors.CategoryForge, "%s", msg)
	}
}

// call is the common path for simple endpoint invocations.
func (c *Client) call(ctx context.Context, method, endpoint string, body, result any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	return c.doRequest(req, result)
}
