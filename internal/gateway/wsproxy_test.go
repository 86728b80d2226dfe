package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlockedMethodPrefixMatches(t *testing.T) {
	assert.True(t, isBlockedMethod("config.set"))
	assert.True(t, isBlockedMethod("config.reload.all"))
	assert.True(t, isBlockedMethod("exec.approvals.list"))
}

func TestIsBlockedMethodExactMatches(t *testing.T) {
	assert.True(t, isBlockedMethod("exec.approval.resolve"))
	assert.True(t, isBlockedMethod("update.run"))
}

func TestIsBlockedMethodAllowsEverythingElse(t *testing.T) {
	assert.False(t, isBlockedMethod("exec.run"))
	assert.False(t, isBlockedMethod("config"))
	assert.False(t, isBlockedMethod("fs.read"))
}

func TestRewriteConnectEnvelopeInjectsToken(t *testing.T) {
	in := []byte(`{"type":"req","id":"1","method":"connect","params":{"auth":{"token":"stale"}}}`)

	out, ok := rewriteConnectEnvelope(in, "real-token")
	require.True(t, ok)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &env))
	params := env["params"].(map[string]interface{})
	auth := params["auth"].(map[string]interface{})
	assert.Equal(t, "real-token", auth["token"])
}

func TestRewriteConnectEnvelopeRecomputesSignedNonce(t *testing.T) {
	in := []byte(`{"method":"connect","params":{"nonce":"abc123"}}`)

	out, ok := rewriteConnectEnvelope(in, "real-token")
	require.True(t, ok)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &env))
	params := env["params"].(map[string]interface{})

	mac := hmac.New(sha256.New, []byte("real-token"))
	mac.Write([]byte("abc123"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, params["signedNonce"])
}

func TestRewriteConnectEnvelopeRejectsUnparsableFrame(t *testing.T) {
	_, ok := rewriteConnectEnvelope([]byte("not json"), "real-token")
	assert.False(t, ok)
}

func TestRewriteConnectEnvelopeRejectsNonConnectMethod(t *testing.T) {
	in := []byte(`{"type":"req","id":"1","method":"fs.read","params":{}}`)
	_, ok := rewriteConnectEnvelope(in, "real-token")
	assert.False(t, ok)
}

func TestRewriteConnectEnvelopeRejectsMissingMethod(t *testing.T) {
	in := []byte(`{"params":{}}`)
	_, ok := rewriteConnectEnvelope(in, "real-token")
	assert.False(t, ok)
}
