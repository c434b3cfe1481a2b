package node

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ryandielhenn/zephyrgraph/pkg/gossip"
)

type wireResponse struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// startHTTPNode serves a node over a real listener with the HTTP transport,
// so the node's address is the test server's URL.
func startHTTPNode(t *testing.T) (*Node, *httptest.Server) {
	t.Helper()
	var h http.Handler = http.NotFoundHandler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	n := New(Config{Address: srv.URL, Bidirectional: true}, gossip.NewHTTPTransport(time.Second), zaptest.NewLogger(t))
	h = n.Routes()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		n.Wait()
	})
	return n, srv
}

func get(t *testing.T, base, path string) (int, wireResponse) {
	t.Helper()
	resp, err := http.Get(base + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out wireResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHTTPGraphRoutes(t *testing.T) {
	_, srv := startHTTPNode(t)

	for _, p := range []string{"/add_vertex/1", "/add_vertex/2", "/add_vertex/3", "/add_edge/1/2", "/add_edge/1/3"} {
		code, r := get(t, srv.URL, p)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "Success", r.Status, "%s: %s", p, r.Message)
	}

	code, r := get(t, srv.URL, "/add_vertex/1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Error", r.Status)

	_, r = get(t, srv.URL, "/check_exists/2/1")
	assert.JSONEq(t, "true", string(r.Data))

	_, r = get(t, srv.URL, "/check_exists/7")
	assert.Equal(t, "Success", r.Status)
	assert.JSONEq(t, "false", string(r.Data))

	_, r = get(t, srv.URL, "/get_neighbors/1")
	assert.JSONEq(t, "[2,3]", string(r.Data))

	_, r = get(t, srv.URL, "/find_path/2/3")
	assert.JSONEq(t, "[2,1,3]", string(r.Data))

	_, r = get(t, srv.URL, "/remove_edge/1/3")
	assert.Equal(t, "Success", r.Status)
	_, r = get(t, srv.URL, "/find_path/2/3")
	assert.Equal(t, "Error", r.Status)

	_, r = get(t, srv.URL, "/remove_vertex/1")
	assert.Equal(t, "Success", r.Status)
	_, r = get(t, srv.URL, "/check_exists/1/2")
	assert.JSONEq(t, "false", string(r.Data))

	_, r = get(t, srv.URL, "/clear")
	assert.Equal(t, "Success", r.Status)
	_, r = get(t, srv.URL, "/check_exists/2")
	assert.JSONEq(t, "false", string(r.Data))
}

func TestHTTPBadVertexID(t *testing.T) {
	_, srv := startHTTPNode(t)

	code, r := get(t, srv.URL, "/add_vertex/abc")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Error", r.Status)

	code, _ = get(t, srv.URL, "/find_path/1/x")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPIndexHealthzInfo(t *testing.T) {
	n, srv := startHTTPNode(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"message":"OK!"}`, string(body))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	get(t, srv.URL, "/add_vertex/5")
	resp, err = http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	var info struct {
		PID      int    `json:"pid"`
		Address  string `json:"address"`
		Vertices int    `json:"vertices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.NotZero(t, info.PID)
	assert.Equal(t, n.Addr(), info.Address)
	assert.Equal(t, 1, info.Vertices)
}

func TestHTTPMetrics(t *testing.T) {
	_, srv := startHTTPNode(t)
	get(t, srv.URL, "/add_vertex/1")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `zephyrgraph_requests_total{op="add_vertex",status="2xx"}`)
}

func TestHTTPRegisterForm(t *testing.T) {
	_, srv := startHTTPNode(t)

	form := url.Values{"their_address": {"10.0.0.9:8000"}, "my_address": {"10.0.0.9:8000"}}
	resp, err := http.PostForm(srv.URL+"/register", form)
	require.NoError(t, err)
	var r wireResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	resp.Body.Close()
	assert.Equal(t, "Successfully register cluster address", r.Message)

	_, r = get(t, srv.URL, "/get_friend")
	assert.JSONEq(t, `["http://10.0.0.9:8000"]`, string(r.Data))
}

func TestHTTPMergeRejectsGarbage(t *testing.T) {
	_, srv := startHTTPNode(t)

	resp, err := http.Post(srv.URL+"/merge", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/merge")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPReplication(t *testing.T) {
	a, srvA := startHTTPNode(t)
	b, srvB := startHTTPNode(t)
	require.NoError(t, b.Join(context.Background(), a.Addr()))

	_, r := get(t, srvA.URL, "/get_friend")
	assert.JSONEq(t, `["`+b.Addr()+`"]`, string(r.Data))

	get(t, srvA.URL, "/add_vertex/1")
	get(t, srvA.URL, "/add_vertex/2")
	get(t, srvA.URL, "/add_edge/1/2")
	_, r = get(t, srvA.URL, "/broadcast")
	require.Equal(t, "Success", r.Status, r.Message)

	var report gossip.Report
	require.NoError(t, json.Unmarshal(r.Data, &report))
	assert.Equal(t, []string{b.Addr()}, report.Delivered)

	b.Wait()
	_, r = get(t, srvB.URL, "/check_exists/1")
	assert.JSONEq(t, "true", string(r.Data))
	_, r = get(t, srvB.URL, "/find_path/2/1")
	assert.JSONEq(t, "[2,1]", string(r.Data))
}
