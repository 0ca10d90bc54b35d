// Package apiclient calls the Resolution API on behalf of the frontend and the sweep bot.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/unbloq/internal/normalize"
	"github.com/JakeFAU/unbloq/internal/resolver"
)

const defaultTimeout = 2 * time.Minute

// StatusError reports an unexpected Resolution API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resolution api returned %d", e.Code)
	}
	return fmt.Sprintf("resolution api returned %d: %s", e.Code, e.Message)
}

// Client resolves URLs through a remote Resolution API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the API at baseURL. httpClient may be nil.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("resolution api base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse resolution api base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

type archiveResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Resolve implements the same contract as resolver.Resolver over HTTP.
func (c *Client) Resolve(ctx context.Context, u normalize.URL) (resolver.Result, error) {
	endpoint := c.baseURL + "/archive?" + url.Values{"url": {u.String()}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return resolver.Result{}, fmt.Errorf("build archive request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return resolver.Result{}, fmt.Errorf("call resolution api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body archiveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return resolver.Result{}, &StatusError{Code: resp.StatusCode, Message: "undecodable body"}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if body.URL == "" {
			return resolver.Result{}, &StatusError{Code: resp.StatusCode, Message: "empty url"}
		}
		status := resolver.StatusFound
		if resp.StatusCode == http.StatusCreated {
			status = resolver.StatusNotYetArchived
		}
		return resolver.Result{Status: status, Link: body.URL}, nil
	default:
		return resolver.Result{}, &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
}
