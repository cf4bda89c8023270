package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Alarm {{.EventLabel}}]
Supply Line: {{.SupplyLine}}
Parameter: {{.Parameter}}
Trigger Value: {{.Value}}
Threshold: {{.Threshold}}
Severity: {{.Severity}}
Raised At: {{.RaisedAt}}
Current Status: {{.Status}}
{{ if .Message }}
{{.Message}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	SupplyLine   string
	SupplyLineID string
	Parameter    string
	Value        string
	Threshold    string
	Severity     string
	Status       string
	RaisedAt     string
	Message      string
	Event        string
	EventLabel   string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alarm-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alarm template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
