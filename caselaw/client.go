// Package caselaw is a client for the Indian Kanoon case-law search API.
package caselaw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"casecounsel-backend/textutil"
)

const (
	DefaultBaseURL = "https://api.indiankanoon.org"
	publicDocURL   = "https://indiankanoon.org/doc/%s/"
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
)

var (
	ErrMissingToken = errors.New("case-law API token not set")
	ErrNoDocument   = errors.New("case-law document has no content")
)

// Doc is one search hit
type Doc struct {
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	URL        string `json:"url"`
	Court      string `json:"court"`
	ExternalID string `json:"external_id"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("case-law API error: %d - %s", e.StatusCode, e.Body)
}

// Client talks to the search and document endpoints
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a functional option for Client
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new case-law client
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a credential is set
func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

type searchResponse struct {
	Docs []struct {
		TID       json.Number `json:"tid"`
		Title     string      `json:"title"`
		Headline  string      `json:"headline"`
		DocSource string      `json:"docsource"`
	} `json:"docs"`
	ErrMsg string `json:"errmsg,omitempty"`
}

// Search runs a full-text query and returns at most limit hits in rank order
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Doc, error) {
	if !c.Configured() {
		return nil, ErrMissingToken
	}

	params := url.Values{}
	params.Set("formInput", query)
	params.Set("pagenum", "0")

	var resp searchResponse
	if err := c.post(ctx, "/search/?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.ErrMsg != "" {
		return nil, fmt.Errorf("case-law search failed: %s", resp.ErrMsg)
	}

	docs := make([]Doc, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		if limit > 0 && len(docs) >= limit {
			break
		}
		id := d.TID.String()
		docs = append(docs, Doc{
			Title:      textutil.StripHTML(d.Title),
			Snippet:    textutil.StripHTML(d.Headline),
			URL:        fmt.Sprintf(publicDocURL, id),
			Court:      d.DocSource,
			ExternalID: id,
		})
	}
	return docs, nil
}

// FetchFullText returns the raw HTML of a judgment
func (c *Client) FetchFullText(ctx context.Context, externalID string) (string, error) {
	if !c.Configured() {
		return "", ErrMissingToken
	}
	if _, err := strconv.ParseInt(externalID, 10, 64); err != nil {
		return "", fmt.Errorf("invalid document id %q", externalID)
	}

	var resp struct {
		Doc    string `json:"doc"`
		ErrMsg string `json:"errmsg,omitempty"`
	}
	if err := c.post(ctx, "/doc/"+externalID+"/", &resp); err != nil {
		return "", err
	}
	if resp.ErrMsg != "" {
		return "", fmt.Errorf("case-law fetch failed: %s", resp.ErrMsg)
	}
	if strings.TrimSpace(resp.Doc) == "" {
		return "", ErrNoDocument
	}
	return resp.Doc, nil
}

func (c *Client) post(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: textutil.Truncate(string(body), 300)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
