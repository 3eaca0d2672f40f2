// Package template provides the rendering engine applied to channel
// step templates during job materialization.
package template

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/kart-io/relayhub/pkg/logger"
)

// Engine renders step template bodies against trigger data using Go's
// text/template syntax.
type Engine struct {
	logger logger.Logger
}

// NewEngine creates a new template engine.
func NewEngine(log logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard
	}
	return &Engine{logger: log}
}

// Render renders template content with the given data. Missing map keys
// render as empty so sparse trigger payloads never abort materialization.
func (e *Engine) Render(content string, data map[string]any) (string, error) {
	tmpl, err := template.New("step").Option("missingkey=zero").Parse(content)
	if err != nil {
		e.logger.Error("Failed to parse step template", "error", err)
		return "", fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		e.logger.Error("Failed to execute step template", "error", err)
		return "", fmt.Errorf("template execution error: %w", err)
	}

	e.logger.Debug("Step template rendered", "length", buf.Len())
	return buf.String(), nil
}

// Validate checks template syntax without rendering.
func (e *Engine) Validate(content string) error {
	if _, err := template.New("validation").Parse(content); err != nil {
		return fmt.Errorf("invalid template syntax: %w", err)
	}
	return nil
}
