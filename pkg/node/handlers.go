package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgraph/internal/telemetry"
	"github.com/ryandielhenn/zephyrgraph/pkg/gossip"
	"github.com/ryandielhenn/zephyrgraph/pkg/graph"
)

// maxBody caps request bodies for /register and /merge.
const maxBody = 64 << 20

// Routes returns the HTTP surface of the node. Every graph route is a thin
// translation into a Command; all of them answer 200 with a Response body
// unless the path itself cannot be parsed.
func (n *Node) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, telemetry.Instrument(route, h))
	}

	handle("GET /{$}", "index", n.Index)
	handle("GET /add_vertex/{u}", "add_vertex", n.vertexOp(OpAddVertex))
	handle("GET /remove_vertex/{u}", "remove_vertex", n.vertexOp(OpRemoveVertex))
	handle("GET /check_exists/{u}", "check_exists", n.vertexOp(OpExistsVertex))
	handle("GET /get_neighbors/{u}", "get_neighbors", n.vertexOp(OpGetNeighbors))
	handle("GET /add_edge/{u}/{v}", "add_edge", n.edgeOp(OpAddEdge))
	handle("GET /remove_edge/{u}/{v}", "remove_edge", n.edgeOp(OpRemoveEdge))
	handle("GET /check_exists/{u}/{v}", "check_exists", n.edgeOp(OpExistsEdge))
	handle("GET /find_path/{u}/{v}", "find_path", n.edgeOp(OpFindPath))
	handle("GET /clear", "clear", n.simpleOp(OpClear))
	handle("GET /broadcast", "broadcast", n.simpleOp(OpBroadcast))
	handle("GET /get_friend", "get_friend", n.simpleOp(OpGetFriend))
	handle("POST /register", "register", n.Register)
	handle("POST /merge", "merge", n.Merge)

	mux.HandleFunc("GET /healthz", n.Healthz)
	mux.HandleFunc("GET /info", n.Info)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())
	return mux
}

// Index is a trivial liveness page kept for older clients.
func (n *Node) Index(w http.ResponseWriter, _ *http.Request) {
	n.writeJSON(w, http.StatusOK, map[string]string{"message": "OK!"})
}

// healthz returns 200 OK to indicate the Node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// info writes a JSON payload with the process ID, current time and replica summary.
func (n *Node) Info(w http.ResponseWriter, req *http.Request) {
	type resp struct {
		PID int       `json:"pid"`
		Now time.Time `json:"now"`
		Info
	}
	r := n.Execute(req.Context(), Command{Op: OpInfo})
	if !r.OK() {
		n.writeJSON(w, http.StatusServiceUnavailable, r)
		return
	}
	info, _ := r.Data.(Info)
	n.writeJSON(w, http.StatusOK, resp{PID: os.Getpid(), Now: time.Now(), Info: info})
}

func (n *Node) vertexOp(op Op) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		u, err := pathVertex(req, "u")
		if err != nil {
			n.writeJSON(w, http.StatusBadRequest, Failure("", err.Error()))
			return
		}
		n.writeJSON(w, http.StatusOK, n.Execute(req.Context(), Command{Op: op, U: u}))
	}
}

func (n *Node) edgeOp(op Op) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		u, err := pathVertex(req, "u")
		if err != nil {
			n.writeJSON(w, http.StatusBadRequest, Failure("", err.Error()))
			return
		}
		v, err := pathVertex(req, "v")
		if err != nil {
			n.writeJSON(w, http.StatusBadRequest, Failure("", err.Error()))
			return
		}
		n.writeJSON(w, http.StatusOK, n.Execute(req.Context(), Command{Op: op, U: u, V: v}))
	}
}

func (n *Node) simpleOp(op Op) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		n.writeJSON(w, http.StatusOK, n.Execute(req.Context(), Command{Op: op}))
	}
}

// Register accepts {their_address, my_address} as JSON or as a form body.
func (n *Node) Register(w http.ResponseWriter, req *http.Request) {
	var rr gossip.RegisterRequest
	req.Body = http.MaxBytesReader(w, req.Body, maxBody)

	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if ct == "multipart/form-data" {
			err = req.ParseMultipartForm(maxBody)
		} else {
			err = req.ParseForm()
		}
		if err != nil {
			n.writeJSON(w, http.StatusBadRequest, Failure("", err.Error()))
			return
		}
		rr.TheirAddress = req.PostFormValue("their_address")
		rr.MyAddress = req.PostFormValue("my_address")
	default:
		if err := json.NewDecoder(req.Body).Decode(&rr); err != nil {
			n.writeJSON(w, http.StatusBadRequest, Failure("", fmt.Sprintf("decode register: %v", err)))
			return
		}
	}
	n.writeJSON(w, http.StatusOK, n.Execute(req.Context(), Command{Op: OpRegister, Register: rr}))
}

// Merge applies an envelope pushed by a peer.
func (n *Node) Merge(w http.ResponseWriter, req *http.Request) {
	var env gossip.Envelope
	req.Body = http.MaxBytesReader(w, req.Body, maxBody)
	if err := json.NewDecoder(req.Body).Decode(&env); err != nil {
		n.log.Warn("undecodable merge body", zap.String("remote", req.RemoteAddr), zap.Error(err))
		n.writeJSON(w, http.StatusBadRequest, Failure("", fmt.Sprintf("decode envelope: %v", err)))
		return
	}
	n.writeJSON(w, http.StatusOK, n.Execute(req.Context(), Command{Op: OpMerge, Envelope: env}))
}

var errBadVertex = errors.New("vertex id must be an integer")

func pathVertex(req *http.Request, name string) (graph.VertexID, error) {
	id, err := strconv.ParseInt(req.PathValue(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errBadVertex, req.PathValue(name))
	}
	return graph.VertexID(id), nil
}

func (n *Node) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.log.Error("encode response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
