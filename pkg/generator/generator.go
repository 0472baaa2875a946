// Package generator defines the content-generation collaborator consumed by
// the stage pipeline engine. The engine treats generators as opaque,
// potentially slow, potentially failing dependencies.
package generator

import (
	"context"

	"github.com/drishiq/ddsa/pkg/models"
)

// Request carries the context a generator needs for one stage attempt.
type Request struct {
	ThreadID  string
	StageID   string
	StageType string
	Config    map[string]any
	History   []models.Message
}

// Response is the outcome of one successful generation call.
type Response struct {
	OutputText string  `json:"output_text"`
	TokensIn   int64   `json:"tokens_in"`
	TokensOut  int64   `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
}

// Generator produces the assistant content for one stage attempt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Factory builds a generator from a stage's validated configuration.
type Factory func(config map[string]any) (Generator, error)
