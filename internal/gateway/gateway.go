package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/slopbox/controlplane/internal/metrics"
	"github.com/slopbox/controlplane/internal/store"
)

// blockedHTTPPath is the single exact path refused when requested with
// POST (spec.md §4.2.1 step 3): it bypasses the on-VPS tool policy.
// Other methods on this path are forwarded like any other request.
const blockedHTTPPath = "/tools/invoke"

// Gateway is the reverse proxy bridging a session-authenticated end-user
// to their agent's on-VPS control surface.
type Gateway struct {
	store       *store.Store
	auth        *Authenticator
	metrics     *metrics.Metrics
	client      *http.Client
	backendPort int
}

func New(st *store.Store, auth *Authenticator, m *metrics.Metrics, backendPort int) *Gateway {
	return &Gateway{
		store:       st,
		auth:        auth,
		metrics:     m,
		backendPort: backendPort,
		client: &http.Client{
			Timeout: 0, // streaming proxy; bounded by per-request context instead
		},
	}
}

// Router builds the gorilla/mux router exposing /agents/{agent_id}/gateway/*
// (spec.md §4.2 "Request model").
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/agents/{agent_id}/gateway/ws", g.handleWS)
	r.PathPrefix("/agents/{agent_id}/gateway/").HandlerFunc(g.handleHTTP)
	return r
}

// resolvedAgent is the caller-verified {agent, vps} pair, ready to be
// addressed.
type resolvedAgent struct {
	agent *store.Agent
	vps   *store.Vps
}

// gatewayError carries an HTTP status alongside a message, used to collapse
// the multi-step resolution chain into one error return (spec.md §4.2.1
// steps 1-2, §4.2 "Errors").
type gatewayError struct {
	status int
	msg    string
}

func (e *gatewayError) Error() string { return e.msg }

func newGatewayError(status int, msg string) *gatewayError {
	return &gatewayError{status: status, msg: msg}
}

// resolve performs spec.md §4.2.1 steps 1-2: authenticate the caller,
// load the agent, verify tenancy, verify the VPS is addressable. Agent
// existence is never leaked across tenants — a missing agent and a
// cross-tenant agent both produce 404.
func (g *Gateway) resolve(r *http.Request) (*resolvedAgent, error) {
	userID, err := g.auth.Authenticate(r)
	if err != nil {
		return nil, newGatewayError(http.StatusUnauthorized, "session authentication failed")
	}

	agentID := mux.Vars(r)["agent_id"]
	agent, err := g.store.GetAgent(r.Context(), agentID)
	if err != nil || agent == nil || agent.UserID != userID {
		return nil, newGatewayError(http.StatusNotFound, "agent not found")
	}

	if agent.VpsID == nil {
		return nil, newGatewayError(http.StatusNotFound, "agent not found")
	}

	vps, err := g.store.GetVps(r.Context(), *agent.VpsID)
	if err != nil || vps == nil {
		return nil, newGatewayError(http.StatusNotFound, "agent not found")
	}

	if vps.State != store.VpsRunning || vps.Address == "" {
		return nil, newGatewayError(http.StatusServiceUnavailable, "vps not running")
	}

	return &resolvedAgent{agent: agent, vps: vps}, nil
}

func (g *Gateway) backendHTTPBase(vps *store.Vps) string {
	return "http://" + vps.Address + ":" + strconv.Itoa(g.backendPort)
}

func (g *Gateway) backendWSBase(vps *store.Vps) string {
	return "ws://" + vps.Address + ":" + strconv.Itoa(g.backendPort) + "/"
}

const defaultSessionMaxTTL = time.Hour
