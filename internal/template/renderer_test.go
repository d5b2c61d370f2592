package template

import (
	"errors"
	"strings"
	"testing"

	"github.com/doron007/realtechee-notify/internal/domain"
)

func emailTemplate() *domain.NotificationTemplate {
	return &domain.NotificationTemplate{
		ID:          "tpl-request-created",
		Channel:     domain.ChannelEmail,
		Name:        "Request Created",
		Subject:     "New request from {{ client_name }}",
		ContentText: "Hi {{ agent_name }}, {{ client_name }} submitted a request at {{ property_address }}.",
		ContentHTML: "<p>Hi {{ agent_name }}, <b>{{ client_name }}</b> submitted a request.</p>",
		Variables:   []string{"agent_name", "client_name", "property_address"},
		IsActive:    true,
	}
}

func TestRender_Substitutes(t *testing.T) {
	r := NewRenderer(160)

	out, err := r.Render(emailTemplate(), domain.Payload{
		"agent_name":       "Dana",
		"client_name":      "Sam Owner",
		"property_address": "12 Main St",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if out.Subject != "New request from Sam Owner" {
		t.Errorf("Subject = %q", out.Subject)
	}
	if !strings.Contains(out.BodyText, "Dana") || !strings.Contains(out.BodyText, "12 Main St") {
		t.Errorf("BodyText = %q", out.BodyText)
	}
	if !strings.Contains(out.BodyHTML, "<b>Sam Owner</b>") {
		t.Errorf("BodyHTML = %q", out.BodyHTML)
	}
}

func TestRender_MissingVariableFailsLoudly(t *testing.T) {
	r := NewRenderer(160)

	// property_address declared but absent from the bag.
	_, err := r.Render(emailTemplate(), domain.Payload{
		"agent_name":  "Dana",
		"client_name": "Sam Owner",
	})
	if err == nil {
		t.Fatal("expected MissingVariableError, got nil")
	}

	var missing *MissingVariableError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingVariableError, got %T: %v", err, err)
	}
	if missing.Variable != "property_address" {
		t.Errorf("Variable = %q, want property_address", missing.Variable)
	}
}

func TestRender_NeverEmitsUnsubstitutedPlaceholder(t *testing.T) {
	r := NewRenderer(160)

	out, err := r.Render(emailTemplate(), domain.Payload{
		"agent_name":       "Dana",
		"client_name":      "Sam",
		"property_address": "12 Main St",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, s := range []string{out.Subject, out.BodyText, out.BodyHTML} {
		if strings.Contains(s, "{{") {
			t.Errorf("output contains unsubstituted placeholder: %q", s)
		}
	}
}

func TestRender_SMSTruncation(t *testing.T) {
	r := NewRenderer(20)

	tpl := &domain.NotificationTemplate{
		ID:          "tpl-sms",
		Channel:     domain.ChannelSMS,
		ContentText: "{{ msg }}",
		Variables:   []string{"msg"},
	}

	out, err := r.Render(tpl, domain.Payload{
		"msg": "this message is far longer than twenty characters",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !out.Truncated {
		t.Error("expected Truncated=true")
	}
	if got := len([]rune(out.BodyText)); got != 20 {
		t.Errorf("body length = %d runes, want 20", got)
	}
}

func TestRender_SMSWithinBudget(t *testing.T) {
	r := NewRenderer(160)

	tpl := &domain.NotificationTemplate{
		ID:          "tpl-sms",
		Channel:     domain.ChannelSMS,
		ContentText: "short {{ msg }}",
		Variables:   []string{"msg"},
	}

	out, err := r.Render(tpl, domain.Payload{"msg": "note"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.Truncated {
		t.Error("expected no truncation")
	}
	if out.BodyText != "short note" {
		t.Errorf("BodyText = %q", out.BodyText)
	}
}

func TestRenderDirect_ByteForByte(t *testing.T) {
	r := NewRenderer(160)

	dc := &domain.DirectContent{
		Subject:  "Exact {{ not_a_variable }} subject",
		BodyText: "verbatim body with {{ braces }} untouched",
		BodyHTML: "<p>raw</p>",
	}

	out := r.RenderDirect(dc)
	if out.Subject != dc.Subject || out.BodyText != dc.BodyText || out.BodyHTML != dc.BodyHTML {
		t.Errorf("direct content altered: %+v", out)
	}
	if out.Truncated {
		t.Error("direct content must never be truncated")
	}
}

func TestRender_Filters(t *testing.T) {
	r := NewRenderer(160)

	tpl := &domain.NotificationTemplate{
		ID:          "tpl-filters",
		Channel:     domain.ChannelEmail,
		Subject:     "{{ name | default: \"there\" | capitalize }}",
		ContentText: "{{ email | mask_email }}",
		Variables:   []string{"email"},
	}

	out, err := r.Render(tpl, domain.Payload{"email": "john.doe@example.com"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.Subject != "There" {
		t.Errorf("Subject = %q, want %q (default+capitalize)", out.Subject, "There")
	}
	if out.BodyText != "jo***@example.com" {
		t.Errorf("BodyText = %q", out.BodyText)
	}
}

func TestParse_InvalidSyntax(t *testing.T) {
	r := NewRenderer(160)
	if err := r.Parse("{% if x %}unterminated"); err == nil {
		t.Error("expected parse error for unterminated tag")
	}
}
