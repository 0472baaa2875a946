package generator

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishiq/ddsa/pkg/models"
)

func TestRegistry_CreateUnknownStageType(t *testing.T) {
	registry := NewRegistry(slog.Default())

	_, err := registry.Create("mystery", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_SchemaRejectsInvalidConfig(t *testing.T) {
	registry := NewRegistry(slog.Default())
	RegisterBuiltins(registry)

	_, err := registry.Create(TemplateStageType, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = registry.Create(TemplateStageType, map[string]any{"template": ""})
	require.Error(t, err)
}

func TestRegistry_CreateTemplateGenerator(t *testing.T) {
	registry := NewRegistry(slog.Default())
	RegisterBuiltins(registry)

	gen, err := registry.Create(TemplateStageType, map[string]any{
		"template": "You said: {{message}}",
	})
	require.NoError(t, err)

	resp, err := gen.Generate(t.Context(), Request{
		ThreadID:  "T1",
		StageID:   "greeting",
		StageType: TemplateStageType,
		History: []models.Message{
			{Role: models.RoleUser, Content: "Hello there", Timestamp: time.Now().UTC()},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "You said: Hello there", resp.OutputText)
	assert.Equal(t, int64(2), resp.TokensIn)
	assert.Positive(t, resp.TokensOut)
}

func TestTemplateGenerator_UsesLastUserMessage(t *testing.T) {
	gen, err := NewTemplateGenerator(map[string]any{"template": "[{{stage}}] {{message}}"})
	require.NoError(t, err)

	resp, err := gen.Generate(t.Context(), Request{
		StageID: "intent",
		History: []models.Message{
			{Role: models.RoleUser, Content: "first"},
			{Role: models.RoleAssistant, Content: "reply"},
			{Role: models.RoleUser, Content: "second"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "[intent] second", resp.OutputText)
}
