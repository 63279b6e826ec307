package unifiedllm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelInfo(t *testing.T) {
	info := GetModelInfo(DefaultModel)
	require.NotNil(t, info)
	assert.Equal(t, "anthropic", info.Provider)
	assert.Equal(t, 200000, info.ContextWindow)

	byAlias := GetModelInfo("sonnet")
	require.NotNil(t, byAlias)
	assert.Equal(t, DefaultModel, byAlias.ID)

	assert.Nil(t, GetModelInfo("no-such-model"))
}

func TestListModels(t *testing.T) {
	all := ListModels("")
	assert.Len(t, all, len(Models))

	for _, m := range ListModels("openai") {
		assert.Equal(t, "openai", m.Provider)
	}
	assert.Empty(t, ListModels("nobody"))
}

func TestGetLatestModel(t *testing.T) {
	latest := GetLatestModel("anthropic")
	require.NotNil(t, latest)
	assert.True(t, latest.SupportsTools)
	assert.Nil(t, GetLatestModel("nobody"))
}

func TestResolveModelID(t *testing.T) {
	assert.Equal(t, "claude-3-5-haiku-20241022", ResolveModelID("haiku"))
	assert.Equal(t, "custom-model", ResolveModelID("custom-model"))
}
