package app

import (
	"testing"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InMemory(t *testing.T) {
	cfg := &config.Config{
		SweepInterval:  time.Minute,
		DigestInterval: time.Hour,
		SourceURLs:     "county=https://county.example/lookup@0.9",
		SourceTimeout:  time.Second,
		SourceCacheTTL: time.Minute,
		SourceRate:     1,
	}

	a, err := New(cfg, logger.NopLogger{})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	require.NotNil(t, a.Services)
	require.NotNil(t, a.Scheduler)
	assert.False(t, a.Scheduler.IsRunning())
	assert.Equal(t, time.Hour, a.Scheduler.GetStatus().Config.DigestInterval)
	assert.Equal(t, config.DefaultRules().Offer, a.Services.CurrentRules().Offer)
}

func TestNew_InvalidRulesFile(t *testing.T) {
	_, err := New(&config.Config{RulesFile: "/nonexistent/rules.yaml"}, logger.NopLogger{})
	assert.Error(t, err)
}

func TestNewCollector(t *testing.T) {
	assert.Nil(t, NewCollector(&config.Config{}, logger.NopLogger{}))
	assert.NotNil(t, NewCollector(&config.Config{SourceURLs: "a=https://a.example"}, logger.NopLogger{}))
}
