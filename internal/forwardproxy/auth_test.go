package forwardproxy

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	p := &Proxy{}
	req, _ := http.NewRequest(http.MethodConnect, "http://example.com", nil)

	_, err := p.authenticate(nil, req) //nolint:staticcheck // nil ctx unused before DB call
	assert.ErrorIs(t, err, errAuthFailed)
}

func TestAuthenticateRejectsMalformedBase64(t *testing.T) {
	p := &Proxy{}
	req, _ := http.NewRequest(http.MethodConnect, "http://example.com", nil)
	req.Header.Set("Proxy-Authorization", "Basic not-base64!!!")

	_, err := p.authenticate(nil, req)
	assert.ErrorIs(t, err, errAuthFailed)
}

func TestAuthenticateRejectsMissingColon(t *testing.T) {
	p := &Proxy{}
	req, _ := http.NewRequest(http.MethodConnect, "http://example.com", nil)
	creds := base64.StdEncoding.EncodeToString([]byte("agent-without-separator"))
	req.Header.Set("Proxy-Authorization", "Basic "+creds)

	_, err := p.authenticate(nil, req)
	assert.ErrorIs(t, err, errAuthFailed)
}
