// Package client talks to a zephyrgraph node over its HTTP facade.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Response mirrors the node's reply body. Data is left raw because its shape
// depends on the route.
type Response struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (r Response) OK() bool { return r.Status == "Success" }

// Decode unmarshals Data into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("empty data in %q response", r.Status)
	}
	return json.Unmarshal(r.Data, v)
}

type Client struct {
	host string
	hc   *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New returns a client for the node at host, e.g. "http://localhost:8000".
func New(host string, opts ...Option) *Client {
	c := &Client{
		host: strings.TrimRight(host, "/"),
		hc:   &http.Client{Timeout: 5 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Host() string { return c.host }

func (c *Client) AddVertex(ctx context.Context, u int64) (Response, error) {
	return c.get(ctx, fmt.Sprintf("/add_vertex/%d", u))
}

func (c *Client) AddEdge(ctx context.Context, u, v int64) (Response, error) {
	return c.get(ctx, fmt.Sprintf("/add_edge/%d/%d", u, v))
}

func (c *Client) RemoveVertex(ctx context.Context, u int64) (Response, error) {
	return c.get(ctx, fmt.Sprintf("/remove_vertex/%d", u))
}

func (c *Client) RemoveEdge(ctx context.Context, u, v int64) (Response, error) {
	return c.get(ctx, fmt.Sprintf("/remove_edge/%d/%d", u, v))
}

func (c *Client) ExistsVertex(ctx context.Context, u int64) (bool, error) {
	return c.flag(ctx, fmt.Sprintf("/check_exists/%d", u))
}

func (c *Client) ExistsEdge(ctx context.Context, u, v int64) (bool, error) {
	return c.flag(ctx, fmt.Sprintf("/check_exists/%d/%d", u, v))
}

// FindPath returns the raw response; on success Data decodes to []int64.
func (c *Client) FindPath(ctx context.Context, u, v int64) (Response, error) {
	return c.get(ctx, fmt.Sprintf("/find_path/%d/%d", u, v))
}

func (c *Client) GetNeighbors(ctx context.Context, u int64) ([]int64, error) {
	r, err := c.get(ctx, fmt.Sprintf("/get_neighbors/%d", u))
	if err != nil {
		return nil, err
	}
	if !r.OK() {
		return nil, fmt.Errorf("get_neighbors %d: %s", u, r.Message)
	}
	var out []int64
	if err := r.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Clear(ctx context.Context) (bool, error) {
	return c.flag(ctx, "/clear")
}

func (c *Client) Broadcast(ctx context.Context) (Response, error) {
	return c.get(ctx, "/broadcast")
}

func (c *Client) GetFriend(ctx context.Context) ([]string, error) {
	r, err := c.get(ctx, "/get_friend")
	if err != nil {
		return nil, err
	}
	var out []string
	if err := r.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Register announces their address to the node, signed as my.
func (c *Client) Register(ctx context.Context, their, my string) (Response, error) {
	body, err := json.Marshal(map[string]string{"their_address": their, "my_address": my})
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/register", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) flag(ctx context.Context, path string) (bool, error) {
	r, err := c.get(ctx, path)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := r.Decode(&ok); err != nil {
		return false, fmt.Errorf("%s: %s: %w", path, r.Message, err)
	}
	return ok, nil
}

func (c *Client) get(ctx context.Context, path string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return Response{}, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return Response{}, fmt.Errorf("%s %s: status %d: %w", req.Method, req.URL.Path, resp.StatusCode, err)
	}
	return out, nil
}
