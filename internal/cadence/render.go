package cadence

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer personalizes message variants with Liquid templates, for example
// "Oi {{ name | firstname | default: \"tudo bem\" }}!". Parsed templates are
// cached by source.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the prospecting filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// First word of a name: {{ name | firstname }}
	engine.RegisterFilter("firstname", func(s string) string {
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return ""
		}
		return fields[0]
	})

	// Title case a company or city: {{ company | titlecase }}
	engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			words[i] = upperFirst(w)
		}
		return strings.Join(words, " ")
	})

	return &Renderer{engine: engine}
}

// Render fills the variant with vars. Variants without Liquid markup are
// returned untouched.
func (r *Renderer) Render(variant string, vars map[string]any) (string, error) {
	if !strings.Contains(variant, "{{") && !strings.Contains(variant, "{%") {
		return variant, nil
	}

	tpl, err := r.parse(variant)
	if err != nil {
		return "", err
	}
	out, rerr := tpl.RenderString(vars)
	if rerr != nil {
		return "", fmt.Errorf("render variant: %w", rerr)
	}
	return strings.TrimSpace(out), nil
}

func (r *Renderer) parse(src string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(src); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parse variant: %w", err)
	}
	r.cache.Store(src, tpl)
	return tpl, nil
}
