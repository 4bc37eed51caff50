package notify

import (
	"bytes"
	"errors"
	"text/template"
	"time"

	"hivewatch/internal/alerting/application/events"
)

const DefaultTemplate = `[Alert {{.EventLabel}}]
Device: {{.DeviceID}}
Rule: {{.RuleID}}
Detail: {{.Message}}
Start Time: {{.StartTime}}
{{ if .EndTime }}End Time: {{.EndTime}}
{{ end }}Alert ID: {{.AlertID}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Event      string
	EventLabel string
	AlertID    string
	DeviceID   string
	RuleID     string
	Message    string
	StartTime  string
	EndTime    string
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
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderMessage decodes an alert payload and renders it.
func (t *Template) RenderMessage(msgType, content string) (string, error) {
	alert, err := events.DecodeAlert(content)
	if err != nil {
		return "", err
	}
	return t.Render(buildTemplateData(msgType, alert))
}

func buildTemplateData(msgType string, alert events.Alert) TemplateData {
	data := TemplateData{
		Event:      msgType,
		EventLabel: eventLabel(msgType),
		AlertID:    alert.AlertID,
		DeviceID:   alert.DeviceID,
		RuleID:     alert.RuleID,
		Message:    alert.Message,
		StartTime:  alert.StartTime.UTC().Format(time.RFC3339),
	}
	if alert.EndTime != nil {
		data.EndTime = alert.EndTime.UTC().Format(time.RFC3339)
	}
	return data
}

func eventLabel(msgType string) string {
	switch msgType {
	case events.TypeAlertTriggered:
		return "Triggered"
	case events.TypeAlertClosed:
		return "Closed"
	default:
		return msgType
	}
}
