package config

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ChainCoinUnlimited/ChainCoin/src/common"
)

// NewTestConfig returns a Config with every default applied and a logger
// that routes through testing.T.Log, so chatty debug output only surfaces
// for failing tests.
func NewTestConfig(t testing.TB) *Config {
	c := NewDefaultConfig()
	c.logger = common.NewTestLogger(t)
	c.logger.Level = logrus.DebugLevel
	return c
}
