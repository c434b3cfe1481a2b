package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport delivers gossip messages to a peer address. Implementations must
// honor ctx; the coordinator bounds every send with its own timeout.
type Transport interface {
	SendMerge(ctx context.Context, addr string, env Envelope) error
	SendRegister(ctx context.Context, addr string, req RegisterRequest) error
}

// HTTPTransport posts JSON to a peer's /merge and /register endpoints.
// Peer addresses are base URLs such as "http://10.0.0.2:8000".
type HTTPTransport struct {
	hc *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPTransport{hc: &http.Client{Timeout: timeout}}
}

// peerReply is the subset of the peer's response envelope we care about.
type peerReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (t *HTTPTransport) SendMerge(ctx context.Context, addr string, env Envelope) error {
	return t.post(ctx, addr+"/merge", env)
}

func (t *HTTPTransport) SendRegister(ctx context.Context, addr string, req RegisterRequest) error {
	return t.post(ctx, addr+"/register", req)
}

func (t *HTTPTransport) post(ctx context.Context, url string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("post %s: read reply: %w", url, err)
	}
	var out peerReply
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("post %s: status %d: %w", url, resp.StatusCode, err)
	}
	if out.Status != "Success" {
		return fmt.Errorf("post %s: peer replied %s: %s", url, out.Status, out.Message)
	}
	return nil
}
