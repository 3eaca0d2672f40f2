// Package workflow defines notification workflow templates and the
// registry the trigger pipeline resolves them from. The registry is the
// narrow interface to the workflow definition store.
package workflow

import (
	"sync"

	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/notification"
)

// Step is one channel step of a workflow template. Content and Subject
// are Go template bodies rendered against the merged trigger payload and
// subscriber profile.
type Step struct {
	Channel notification.Channel `json:"channel"`
	Content string               `json:"content"`
	Subject string               `json:"subject,omitempty"`
	CTA     map[string]any       `json:"cta,omitempty"`
	Active  bool                 `json:"active"`
}

// Workflow is a named, ordered sequence of channel steps.
type Workflow struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// ActiveSteps returns the steps the materializer walks, in template order.
func (w *Workflow) ActiveSteps() []Step {
	steps := make([]Step, 0, len(w.Steps))
	for _, s := range w.Steps {
		if s.Active {
			steps = append(steps, s)
		}
	}
	return steps
}

// Registry holds workflow definitions keyed by name.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]*Workflow),
	}
}

// Register adds or replaces a workflow definition. A workflow needs a
// name and at least one active step, so every notification it produces
// carries at least one message.
func (r *Registry) Register(wf *Workflow) error {
	if wf == nil || wf.Name == "" {
		return errors.New(errors.CodeInvalidRequest, "workflow must have a name")
	}
	if len(wf.ActiveSteps()) == 0 {
		return errors.New(errors.CodeInvalidRequest, "workflow must have at least one active step")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.Name] = wf
	return nil
}

// Resolve returns the workflow registered under name.
func (r *Registry) Resolve(name string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[name]
	if !ok {
		return nil, errors.TemplateNotFound(name)
	}
	return wf, nil
}

// List returns all registered workflow names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	return names
}
