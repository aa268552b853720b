package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/generation"
)

// Rule answers prompts containing Contains. Err takes precedence over
// Response. A rule with Times > 0 is used at most that many times.
type Rule struct {
	Contains string
	Response string
	Err      error
	Times    int

	used int
}

// ScriptedGateway is a deterministic generation.Gateway. The first matching
// rule answers; Default answers everything else.
type ScriptedGateway struct {
	Default string

	mu      sync.Mutex
	rules   []*Rule
	prompts []string
	opts    []generation.Options
}

// NewScriptedGateway returns a gateway that answers with the given rules.
func NewScriptedGateway(rules ...Rule) *ScriptedGateway {
	g := &ScriptedGateway{}
	for i := range rules {
		r := rules[i]
		g.rules = append(g.rules, &r)
	}
	return g
}

// Generate implements generation.Gateway.
func (g *ScriptedGateway) Generate(ctx context.Context, prompt string, opts ...generation.Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, generation.NewOptions(opts...))
	for _, r := range g.rules {
		if !strings.Contains(prompt, r.Contains) {
			continue
		}
		if r.Times > 0 && r.used >= r.Times {
			continue
		}
		r.used++
		if r.Err != nil {
			return "", r.Err
		}
		return r.Response, nil
	}
	return g.Default, nil
}

// Prompts returns every prompt received so far.
func (g *ScriptedGateway) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Options returns the resolved options of every call so far.
func (g *ScriptedGateway) Options() []generation.Options {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Options(nil), g.opts...)
}

// Calls returns the number of Generate calls.
func (g *ScriptedGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}
