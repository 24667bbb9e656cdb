package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoOp(t *testing.T) {
	shutdown, err := Setup(context.Background(), DefaultConfig("daedalus"), nil)
	require.NoError(t, err)
	assert.NoError(t, Shutdown(shutdown, time.Second, nil))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DAEDALUS_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("DAEDALUS_TRACE_SAMPLE_RATIO", "0.25")
	cfg, err := LoadConfig("daedalus")
	require.NoError(t, err)
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	assert.InDelta(t, 0.25, cfg.SampleRatio, 1e-9)

	t.Setenv("DAEDALUS_TRACE_SAMPLE_RATIO", "2")
	_, err = LoadConfig("daedalus")
	assert.Error(t, err)
}
