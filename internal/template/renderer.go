// Package template renders notification templates with the Liquid template
// language.
//
// Rendering is strict: every variable a template declares must be present
// in the variable bag or rendering fails with MissingVariableError. A
// partially substituted outbound message is worse than a blocked send, so
// there is no lax fallback on the delivery path.
package template

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// MissingVariableError reports a declared template variable absent from the
// variable bag.
type MissingVariableError struct {
	TemplateID string
	Variable   string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %s: missing variable %q", e.TemplateID, e.Variable)
}

// Renderer compiles and renders Liquid templates with caching.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // cacheKey -> *liquid.Template
	// maxSMSChars is the single-segment budget SMS bodies are truncated to.
	maxSMSChars int
}

// NewRenderer creates a renderer with the domain filter set registered.
// maxSMSChars <= 0 falls back to the classic 160-character GSM segment.
func NewRenderer(maxSMSChars int) *Renderer {
	if maxSMSChars <= 0 {
		maxSMSChars = 160
	}
	r := &Renderer{
		engine:      liquid.NewEngine(),
		maxSMSChars: maxSMSChars,
	}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// Fallback value: {{ agent_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// Truncate with ellipsis: {{ address | truncate: 50 }}
	r.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// HTML escape (safety): {{ user_input | escape }}
	r.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	r.engine.RegisterFilter("email_domain", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	})

	r.engine.RegisterFilter("mask_email", func(email string) string {
		return logger.RedactEmail(email)
	})
}

// Parse compiles a template string and returns any syntax error. Used by
// the admin API to validate templates before saving.
func (r *Renderer) Parse(templateStr string) error {
	_, err := r.engine.ParseString(templateStr)
	return err
}

// Render produces channel-ready content from a template and a variable bag.
// Every variable declared by the template must be present in the bag.
func (r *Renderer) Render(tpl *domain.NotificationTemplate, vars domain.Payload) (*domain.RenderedContent, error) {
	for _, name := range tpl.Variables {
		if _, ok := vars.Field(name); !ok {
			return nil, &MissingVariableError{TemplateID: tpl.ID, Variable: name}
		}
	}

	bindings := map[string]interface{}(vars)

	subject, err := r.renderOne(tpl.ID+":subject", tpl.Subject, bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject of template %s: %w", tpl.ID, err)
	}
	bodyText, err := r.renderOne(tpl.ID+":text", tpl.ContentText, bindings)
	if err != nil {
		return nil, fmt.Errorf("render text body of template %s: %w", tpl.ID, err)
	}

	out := &domain.RenderedContent{
		Subject:  subject,
		BodyText: bodyText,
	}

	if tpl.ContentHTML != "" {
		bodyHTML, err := r.renderOne(tpl.ID+":html", tpl.ContentHTML, bindings)
		if err != nil {
			return nil, fmt.Errorf("render html body of template %s: %w", tpl.ID, err)
		}
		out.BodyHTML = bodyHTML
	}

	if tpl.Channel == domain.ChannelSMS {
		out.BodyText, out.Truncated = r.fitSMS(out.BodyText)
		if out.Truncated {
			logger.Warn("sms body truncated to segment budget",
				"template_id", tpl.ID, "budget", r.maxSMSChars)
		}
	}

	return out, nil
}

// RenderDirect returns enqueuer-supplied content verbatim, bypassing the
// template engine entirely. No truncation is applied: the contract is
// byte-for-byte equality with the input.
func (r *Renderer) RenderDirect(dc *domain.DirectContent) *domain.RenderedContent {
	return &domain.RenderedContent{
		Subject:  dc.Subject,
		BodyText: dc.BodyText,
		BodyHTML: dc.BodyHTML,
	}
}

func (r *Renderer) renderOne(cacheKey, templateStr string, bindings map[string]interface{}) (string, error) {
	if cached, ok := r.cache.Load(cacheKey); ok {
		return cached.(*liquid.Template).RenderString(bindings)
	}

	tpl, err := r.engine.ParseString(templateStr)
	if err != nil {
		return "", err
	}
	r.cache.Store(cacheKey, tpl)
	return tpl.RenderString(bindings)
}

// fitSMS truncates a body to the single-segment budget, cutting on a rune
// boundary so multi-byte characters are never split.
func (r *Renderer) fitSMS(body string) (string, bool) {
	runes := []rune(body)
	if len(runes) <= r.maxSMSChars {
		return body, false
	}
	return string(runes[:r.maxSMSChars]), true
}

// ClearCache drops all compiled templates. Called when a template is
// updated through the admin API.
func (r *Renderer) ClearCache() {
	r.cache = sync.Map{}
}

// ClearTemplate drops the compiled entries for one template id.
func (r *Renderer) ClearTemplate(templateID string) {
	for _, suffix := range []string{":subject", ":text", ":html"} {
		r.cache.Delete(templateID + suffix)
	}
}
