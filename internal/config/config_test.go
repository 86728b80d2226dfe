package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverridesCapsSessionMaxTTL(t *testing.T) {
	c := &Config{Gateway: GatewayConfig{SessionMaxTTLSec: 10 * sessionMaxTTLHardCapSec}}
	c.applyEnvOverrides()
	assert.Equal(t, sessionMaxTTLHardCapSec, c.Gateway.SessionMaxTTLSec)
}

func TestApplyEnvOverridesLeavesTTLUnderCapAlone(t *testing.T) {
	c := &Config{Gateway: GatewayConfig{SessionMaxTTLSec: 3600}}
	c.applyEnvOverrides()
	assert.Equal(t, 3600, c.Gateway.SessionMaxTTLSec)
}
