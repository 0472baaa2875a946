package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/drishiq/ddsa/pkg/models"
)

// TemplateStageType is the stage type handled by the template generator.
const TemplateStageType = "template"

// TemplateGenerator renders a configured reply template against the last
// user message. It is the built-in generator used in development and tests;
// model-backed generators register their own stage types.
type TemplateGenerator struct {
	template string
}

// NewTemplateGenerator creates a template generator from stage config.
func NewTemplateGenerator(config map[string]any) (Generator, error) {
	template, _ := config["template"].(string)
	if template == "" {
		return nil, fmt.Errorf("template generator requires a 'template' config value")
	}

	return &TemplateGenerator{template: template}, nil
}

// GetTemplateSchema returns the JSON schema for template stage config.
func GetTemplateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
		"required": []any{"template"},
	}
}

// Generate renders the template. Token counts are approximated from
// whitespace-separated words so usage accounting stays exercised end to end.
func (g *TemplateGenerator) Generate(_ context.Context, req Request) (*Response, error) {
	lastUser := ""

	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == models.RoleUser {
			lastUser = req.History[i].Content

			break
		}
	}

	output := strings.ReplaceAll(g.template, "{{message}}", lastUser)
	output = strings.ReplaceAll(output, "{{stage}}", req.StageID)

	tokensIn := int64(0)
	for _, msg := range req.History {
		tokensIn += int64(len(strings.Fields(msg.Content)))
	}

	return &Response{
		OutputText: output,
		TokensIn:   tokensIn,
		TokensOut:  int64(len(strings.Fields(output))),
	}, nil
}

// RegisterBuiltins registers the generators that ship with the engine.
func RegisterBuiltins(registry *Registry) {
	registry.Register(TemplateStageType, GetTemplateSchema(), NewTemplateGenerator)
}
