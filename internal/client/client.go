// Package client talks to a running atlas server.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lazypower/atlas/internal/api"
	"github.com/lazypower/atlas/internal/scheduler"
)

const (
	// DefaultServerURL is used when ATLAS_URL is unset.
	DefaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 5 * time.Second
)

// StatusError is returned for responses with status >= 400.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Msg    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Msg)
}

// Client talks to the atlas server.
type Client struct {
	http      *http.Client
	serverURL string
}

// NewClient creates a client for the given server URL.
// An empty url respects ATLAS_URL, then falls back to DefaultServerURL.
func NewClient(url string) *Client {
	if url == "" {
		url = os.Getenv("ATLAS_URL")
	}
	if url == "" {
		url = DefaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(url, "/"),
	}
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.serverURL
}

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(path string, body []byte) ([]byte, error) {
	resp, err := c.http.Post(c.serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return readBody("POST", path, resp)
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return readBody("GET", path, resp)
}

func readBody(method, path string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(data))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return data, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Msg: msg}
	}
	return data, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Queue fetches the items due today.
func (c *Client) Queue() (*api.Queue, error) {
	data, err := c.Get("/api/reviews/queue")
	if err != nil {
		return nil, err
	}
	var q api.Queue
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return &q, nil
}

// Review fetches a single review item.
func (c *Client) Review(id int64) (*api.ReviewItem, error) {
	data, err := c.Get(fmt.Sprintf("/api/reviews/%d", id))
	if err != nil {
		return nil, err
	}
	var item api.ReviewItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode review: %w", err)
	}
	return &item, nil
}

// Grade submits a rating for a review item.
func (c *Client) Grade(id int64, rating scheduler.Rating) (*api.GradeResult, error) {
	body, err := json.Marshal(api.GradeRequest{Rating: rating})
	if err != nil {
		return nil, err
	}
	data, err := c.Post(fmt.Sprintf("/api/reviews/%d/grade", id), body)
	if err != nil {
		return nil, err
	}
	var res api.GradeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode grade result: %w", err)
	}
	return &res, nil
}

// History fetches the grading log of a review item, oldest first.
func (c *Client) History(id int64) ([]api.ReviewLog, error) {
	data, err := c.Get(fmt.Sprintf("/api/reviews/%d/history", id))
	if err != nil {
		return nil, err
	}
	var body struct {
		History []api.ReviewLog `json:"history"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return body.History, nil
}
