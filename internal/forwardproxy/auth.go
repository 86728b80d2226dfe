package forwardproxy

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/slopbox/controlplane/internal/store"
)

var errAuthFailed = errors.New("forwardproxy: authentication failed")

// authenticate decodes Proxy-Authorization: Basic base64(agent_id:token),
// looks up the agent by id, and verifies the presented token against the
// stored gateway token using a constant-time comparison (spec.md §4.1
// "the control-plane-side comparison should use constant-time
// equality").
func (p *Proxy) authenticate(ctx context.Context, req *http.Request) (*store.Agent, error) {
	header := req.Header.Get("Proxy-Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return nil, errAuthFailed
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return nil, errAuthFailed
	}

	agentID, token, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, errAuthFailed
	}

	agent, err := p.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, errAuthFailed
	}

	if !store.ConstantTimeEquals(agent.GatewayToken, token) {
		return nil, errAuthFailed
	}

	return agent, nil
}
