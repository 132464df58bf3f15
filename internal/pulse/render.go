package pulse

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/HerbHall/loginwatch/pkg/models"
)

// AlertTags identify where an alert came from.
type AlertTags struct {
	Environment string
	Host        string
}

const timeLayout = "2006-01-02 15:04:05 MST"

var alertTemplate = template.Must(template.New("alert").Parse(
	`{{.Icon}} {{.Headline}}
Status: {{.Status}}
Endpoint: {{.Endpoint}}
Environment: {{.Environment}}
Host: {{.Host}}
Time: {{.Time}}
{{- if .Latency}}
Latency: {{.Latency}}
{{- end}}
Details: {{.Detail}}
`))

type alertView struct {
	Icon        string
	Headline    string
	Status      models.Status
	Endpoint    string
	Environment string
	Host        string
	Time        string
	Latency     string
	Detail      string
}

// RenderAlert builds the notification for an endpoint whose status changed.
func RenderAlert(outcome models.ProbeOutcome, endpoint string, tags AlertTags, at time.Time) Alert {
	view := alertView{
		Icon:        "🚨",
		Status:      outcome.Status,
		Endpoint:    endpoint,
		Environment: tags.Environment,
		Host:        tags.Host,
		Time:        at.Local().Format(timeLayout),
		Detail:      outcome.Detail,
	}
	if outcome.Latency > 0 {
		view.Latency = outcome.Latency.Round(time.Millisecond).String()
	}

	var subject string
	switch outcome.Status {
	case models.StatusLoginFailed:
		subject = "Login Failed Alert"
		view.Headline = fmt.Sprintf("Login to %s failed: credentials rejected.", endpoint)
	case models.StatusUnreachable:
		subject = "Site Unreachable Alert"
		view.Headline = fmt.Sprintf("Site unreachable during login check at %s.", endpoint)
	default:
		subject = "Login Monitor Recovery"
		view.Icon = "✅"
		view.Headline = fmt.Sprintf("Login check successful again at %s.", endpoint)
	}

	var b strings.Builder
	// The template only reads string fields; Execute cannot fail.
	_ = alertTemplate.Execute(&b, view)

	return Alert{
		Subject:  fmt.Sprintf("[%s] %s", tags.Environment, subject),
		Body:     b.String(),
		Status:   outcome.Status,
		Endpoint: endpoint,
	}
}

// RenderCritical builds the alert sent when the run itself fails.
func RenderCritical(cause error, tags AlertTags, at time.Time) Alert {
	body := fmt.Sprintf(`🔥 Login monitor run failed unexpectedly.
Environment: %s
Host: %s
Time: %s
Error: %v
`, tags.Environment, tags.Host, at.Local().Format(timeLayout), cause)

	return Alert{
		Subject:  fmt.Sprintf("[%s] Login Monitor Critical Failure", tags.Environment),
		Body:     body,
		Critical: true,
	}
}
