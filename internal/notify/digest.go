package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/st20medic/trucks/internal/domain"
)

// DigestEntry is one vehicle's section of the digest.
type DigestEntry struct {
	Vehicle domain.VehicleSnapshot
	Alerts  []domain.Alert
}

var digestTmpl = template.Must(template.New("digest").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #222;">
<h2>Fleet Maintenance Digest</h2>
<p>{{.SummaryLine}}</p>
{{range .Entries}}
<hr>
<h3>{{.Vehicle.UnitLabel}}</h3>
<p>Odometer: {{.Vehicle.Odometer}} mi &mdash; record updated {{.Vehicle.UpdatedAt.Format "Jan 2, 2006"}}</p>
{{if .Vehicle.OutOfService}}
<p style="color: #b00; font-weight: bold;">OUT OF SERVICE{{if .Vehicle.OutOfServiceReason}}: {{.Vehicle.OutOfServiceReason}}{{end}}</p>
{{end}}
{{if .Alerts}}
<ul>
{{range .Alerts}}
<li>{{if eq (printf "%s" .Severity) "OVERDUE"}}<strong>{{.Message}}</strong>{{else}}{{.Message}}{{end}}</li>
{{end}}
</ul>
{{end}}
{{end}}
<hr>
<p style="color: #888; font-size: 12px;">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}. Dismissed items stay quiet for 7 days.</p>
</body>
</html>
`))

type digestData struct {
	SummaryLine string
	Entries     []DigestEntry
	GeneratedAt time.Time
}

// RenderDigest produces the subject and HTML body for one digest covering all
// qualifying vehicles. Entries are rendered in the order given.
func RenderDigest(entries []DigestEntry, now time.Time) (subject, htmlBody string, err error) {
	if len(entries) == 0 {
		return "", "", fmt.Errorf("render digest: no entries")
	}

	alertCount := 0
	for _, e := range entries {
		alertCount += len(e.Alerts)
	}

	subject = fmt.Sprintf("Fleet maintenance: %d vehicle(s) need attention", len(entries))

	data := digestData{
		SummaryLine: fmt.Sprintf("%d vehicle(s) with %d open item(s).", len(entries), alertCount),
		Entries:     entries,
		GeneratedAt: now,
	}

	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render digest: %w", err)
	}
	return subject, buf.String(), nil
}
