package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// handleHTTP implements spec.md §4.2.1: resolve the caller, refuse the
// blocked tool-invoke path, forward everything else to the on-VPS
// control surface with the gateway token injected.
func (g *Gateway) handleHTTP(w http.ResponseWriter, r *http.Request) {
	resolved, err := g.resolve(r)
	if err != nil {
		g.countRequest(outcomeFor(err))
		writeGatewayError(w, err)
		return
	}

	upstreamPath := strings.TrimPrefix(r.URL.Path, gatewayPathPrefix(r))
	if r.Method == http.MethodPost && upstreamPath == blockedHTTPPath {
		g.countRequest("blocked_path")
		http.Error(w, "this endpoint is not reachable through the gateway", http.StatusForbidden)
		return
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, g.backendHTTPBase(resolved.vps)+upstreamPath, r.Body)
	if err != nil {
		g.countRequest("upstream_failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	if r.URL.RawQuery != "" {
		outReq.URL.RawQuery = r.URL.RawQuery
	}
	outReq.Header = r.Header.Clone()
	outReq.Header.Del("Authorization")
	outReq.Header.Set("Authorization", "Bearer "+resolved.agent.GatewayToken)

	resp, err := g.client.Do(outReq)
	if err != nil {
		g.countRequest("upstream_failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Error("gateway: response stream interrupted", "err", err)
	}
	g.countRequest("forwarded")
}

func (g *Gateway) countRequest(outcome string) {
	if g.metrics != nil {
		g.metrics.GatewayRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeFor(err error) string {
	ge, ok := err.(*gatewayError)
	if !ok {
		return "upstream_failed"
	}
	switch ge.status {
	case http.StatusUnauthorized:
		return "auth_failed"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "upstream_failed"
	}
}

// gatewayPathPrefix returns the routed prefix so the remainder can be
// forwarded verbatim to the backend (the backend owns its own path space
// below the gateway prefix).
func gatewayPathPrefix(r *http.Request) string {
	return "/agents/" + mux.Vars(r)["agent_id"] + "/gateway"
}

func writeGatewayError(w http.ResponseWriter, err error) {
	if ge, ok := err.(*gatewayError); ok {
		http.Error(w, ge.msg, ge.status)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}
