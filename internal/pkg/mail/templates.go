package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
)

var cancellationTmpl = template.Must(template.New("cancellation").Parse(`<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>your PawDesk subscription{{if .PlanID}} ({{.PlanID}}){{end}} has been canceled.</p>
{{- if .PeriodEnd}}
<p>You keep access until {{.PeriodEnd}}.</p>
{{- end}}
<p>If this was not intended, reply to this mail or resubscribe from your clinic settings.</p>
<p>Subscription reference: {{.Reference}}</p>
`))

// RenderCancellationNotice returns subject and HTML body for a canceled subscription.
func RenderCancellationNotice(n billing.CancellationNotice) (string, string, error) {
	data := struct {
		Name      string
		PlanID    string
		PeriodEnd string
		Reference string
	}{
		Name:      n.Name,
		PlanID:    n.PlanID,
		Reference: n.UpstreamSubscriptionID,
	}
	if n.CurrentPeriodEnd != nil && !n.CurrentPeriodEnd.IsZero() {
		data.PeriodEnd = n.CurrentPeriodEnd.UTC().Format("January 2, 2006")
	}

	var buf bytes.Buffer
	if err := cancellationTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render cancellation notice: %w", err)
	}
	return "Your PawDesk subscription was canceled", buf.String(), nil
}
