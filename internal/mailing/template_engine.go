// Package mailing renders campaign HTML with per-contact placeholder
// substitution using the Liquid template language.
package mailing

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-sender/internal/domain"
)

// RenderMode determines how the engine handles missing variables.
type RenderMode int

const (
	// RenderModeLax renders missing vars as empty strings (production sends).
	RenderModeLax RenderMode = iota
	// RenderModeStrict surfaces parse errors (preview/validation).
	RenderModeStrict
)

// TemplateService renders Liquid templates with parse caching. Safe for
// concurrent use.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewTemplateService creates a template service with the campaign filters
// registered.
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerFilters()
	return ts
}

func (ts *TemplateService) registerFilters() {
	// {{ first_name | default: "Friend" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ name | capitalize }}
	ts.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// {{ email | urlencode }}
	ts.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// {{ user_input | escape }}
	ts.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
}

// Render substitutes contact bindings into the template source. In lax mode
// a template that fails to parse is returned unrendered so a production send
// degrades to the raw HTML rather than failing the whole campaign.
func (ts *TemplateService) Render(source string, bindings map[string]interface{}, mode RenderMode) (string, error) {
	tmpl, err := ts.parse(source)
	if err != nil {
		if mode == RenderModeStrict {
			return "", fmt.Errorf("parsing template: %w", err)
		}
		return source, nil
	}

	out, err := tmpl.RenderString(bindings)
	if err != nil {
		if mode == RenderModeStrict {
			return "", fmt.Errorf("rendering template: %w", err)
		}
		return source, nil
	}
	return out, nil
}

func (ts *TemplateService) parse(source string) (*liquid.Template, error) {
	if cached, ok := ts.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tmpl, err := ts.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	ts.cache.Store(source, tmpl)
	return tmpl, nil
}

// Bindings builds the variable map for one contact: the canonical fields
// plus any custom attributes from import.
func Bindings(c domain.Contact) map[string]interface{} {
	b := map[string]interface{}{
		"email":       c.Key(),
		"first_name":  c.FirstName,
		"last_name":   c.LastName,
		"title":       c.Title,
		"company":     c.Company,
		"entity_type": c.EntityType,
		"state":       c.State,
		"agency_name": c.AgencyName,
		"sector":      c.Sector,
		"subsection":  c.Subsection,
		"phone":       c.Phone,
		"group":       c.Group,
	}
	for k, v := range c.Custom {
		if _, taken := b[k]; !taken {
			b[k] = v
		}
	}
	return b
}
