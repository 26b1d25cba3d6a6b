package compatible_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/gateway/providers/compatible"
)

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := compatible.New(compatible.Config{DefaultModel: "llama3"})
	assert.Error(t, err)
}

func TestNewBuildsClient(t *testing.T) {
	c, err := compatible.New(compatible.Config{
		BaseURL:      "http://localhost:8000/v1",
		DefaultModel: "llama3",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NoError(t, c.Close())
}
