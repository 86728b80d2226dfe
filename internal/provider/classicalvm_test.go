package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderCloudInitStartsAgentService(t *testing.T) {
	out := renderCloudInit(VpsSpec{Name: "test"})
	assert.Contains(t, out, "runcmd:")
	assert.Contains(t, out, "systemctl enable --now "+agentServiceName)
}

func TestRenderCloudInitWritesFilesAndEnv(t *testing.T) {
	spec := VpsSpec{
		Files: []InjectedFile{{GuestPath: "/opt/app/config.json", RawContent: []byte(`{"a":1}`)}},
		Env:   map[string]string{"FOO": "bar"},
	}
	out := renderCloudInit(spec)
	assert.Contains(t, out, "write_files:")
	assert.Contains(t, out, "/opt/app/config.json")
	assert.Contains(t, out, "/etc/agent-env")
}

func TestServerTypeMapsCPUMillicores(t *testing.T) {
	assert.Equal(t, "cx22", serverType(2000))
	assert.Equal(t, "cx32", serverType(4000))
	assert.Equal(t, "cx42", serverType(8000))
	assert.Equal(t, "cx52", serverType(8001))
}
