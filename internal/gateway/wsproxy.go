package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const controlWriteTimeout = 5 * time.Second

// upgrader accepts any origin: tenancy is enforced by session-JWT auth in
// resolve, not by same-origin policy (grounded on the teacher's
// dag_streamer.go upgrader shape).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// blockedPrefixes and blockedMethods implement the RPC method block set
// (spec.md §4.2.2 "Frame filter").
var blockedPrefixes = []string{"config.", "exec.approvals."}
var blockedMethods = map[string]bool{
	"exec.approval.resolve": true,
	"update.run":            true,
}

func isBlockedMethod(method string) bool {
	if blockedMethods[method] {
		return true
	}
	for _, p := range blockedPrefixes {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}

// rpcEnvelope is the minimal shape needed to identify an RPC request and
// its method (spec.md §4.2.2: "identifiable by the presence of a method
// string and typically type: req or an id").
type rpcEnvelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Type   string          `json:"type,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	ID    json.RawMessage `json:"id,omitempty"`
	Error rpcErrorBody    `json:"error"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const methodNotFoundCode = -32601

// handleWS implements spec.md §4.2.2: upgrade under session auth, dial
// the backend, rewrite the first client frame to inject the gateway
// token, then relay both directions with a method block-set filter
// applied only to client→backend text frames.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	resolved, err := g.resolve(r)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	client, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader already wrote the HTTP error response
	}
	defer client.Close()

	backend, _, err := websocket.DefaultDialer.Dial(g.backendWSBase(resolved.vps), nil)
	if err != nil {
		client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream unavailable"), time.Now().Add(controlWriteTimeout))
		return
	}
	defer backend.Close()

	if g.metrics != nil {
		g.metrics.GatewayWSSessions.Inc()
		defer g.metrics.GatewayWSSessions.Dec()
	}

	if !relayHandshakeFrame(client, backend, resolved.agent.GatewayToken) {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g.relayClientToBackend(client, backend)
	}()
	go func() {
		defer wg.Done()
		relayBackendToClient(backend, client)
	}()
	wg.Wait()
}

// relayHandshakeFrame reads exactly one frame from the client, rewrites
// it per spec.md §4.2.2 step 3, and forwards it upstream. A frame that
// isn't the expected text `connect` envelope is rejected at the protocol
// layer with close code 1002, matching §5's ordering guarantee that the
// first frame must be the connect request.
func relayHandshakeFrame(client, backend *websocket.Conn, token string) bool {
	mt, data, err := client.ReadMessage()
	if err != nil {
		return false
	}
	if mt != websocket.TextMessage {
		closeProtocolError(client)
		return false
	}

	rewritten, ok := rewriteConnectEnvelope(data, token)
	if !ok {
		closeProtocolError(client)
		return false
	}
	if err := backend.WriteMessage(websocket.TextMessage, rewritten); err != nil {
		return false
	}
	return true
}

// rewriteConnectEnvelope injects the agent's gateway token into the
// first client frame's params.auth.token and, when the envelope carries
// a nonce, recomputes params.signedNonce as HMAC-SHA256 keyed by that
// token (spec.md §4.2.2 step 3). The envelope must have method ==
// "connect" (spec.md §6 "First client text frame ... MUST be a JSON
// object with method == 'connect'"); anything else is rejected.
func rewriteConnectEnvelope(data []byte, token string) ([]byte, bool) {
	var env map[string]interface{}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	if method, _ := env["method"].(string); method != "connect" {
		return nil, false
	}

	params, _ := env["params"].(map[string]interface{})
	if params == nil {
		params = map[string]interface{}{}
		env["params"] = params
	}
	auth, _ := params["auth"].(map[string]interface{})
	if auth == nil {
		auth = map[string]interface{}{}
		params["auth"] = auth
	}
	auth["token"] = token

	if nonce, ok := params["nonce"].(string); ok {
		mac := hmac.New(sha256.New, []byte(token))
		mac.Write([]byte(nonce))
		params["signedNonce"] = hex.EncodeToString(mac.Sum(nil))
	}

	rewritten, err := json.Marshal(env)
	if err != nil {
		return nil, false
	}
	return rewritten, true
}

func closeProtocolError(c *websocket.Conn) {
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseProtocolError, "first frame must be connect"), time.Now().Add(controlWriteTimeout))
}

// relayClientToBackend applies the RPC method block set to text frames
// and forwards everything else unfiltered (spec.md §4.2.2 "Frame filter").
func (g *Gateway) relayClientToBackend(client, backend *websocket.Conn) {
	for {
		mt, data, err := client.ReadMessage()
		if err != nil {
			propagateClose(backend, client, err)
			return
		}

		if mt != websocket.TextMessage {
			if err := backend.WriteMessage(mt, data); err != nil {
				return
			}
			continue
		}

		var env rpcEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Method == "" {
			if err := backend.WriteMessage(mt, data); err != nil {
				return
			}
			continue
		}

		if isBlockedMethod(env.Method) {
			if g.metrics != nil {
				g.metrics.GatewayBlockedRPCs.WithLabelValues(env.Method).Inc()
			}
			reply := rpcError{ID: env.ID, Error: rpcErrorBody{Code: methodNotFoundCode, Message: "method blocked"}}
			payload, merr := json.Marshal(reply)
			if merr == nil {
				if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
			continue
		}

		if err := backend.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

// relayBackendToClient forwards backend frames verbatim: backend→client
// frames are never filtered (spec.md §4.2.2).
func relayBackendToClient(backend, client *websocket.Conn) {
	for {
		mt, data, err := backend.ReadMessage()
		if err != nil {
			propagateClose(client, backend, err)
			return
		}
		if err := client.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

// propagateClose mirrors a close from one side of the relay to the other,
// preserving the close code where one was sent (spec.md §5 "Cancellation").
func propagateClose(dst, src *websocket.Conn, cause error) {
	code := websocket.CloseUnsupportedData
	if ce, ok := cause.(*websocket.CloseError); ok {
		code = ce.Code
	} else {
		code = websocket.CloseInternalServerErr
	}
	_ = dst.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(controlWriteTimeout))
}
