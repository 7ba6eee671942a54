package report

import (
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/tabwatch/tabwatch/internal/risk"
	"github.com/tabwatch/tabwatch/internal/store"
)

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Activity Tracker Report</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; margin: 0; padding: 20px; background: #f5f7fa; }
    .container { max-width: 1200px; margin: 0 auto; background: white; padding: 40px; border-radius: 12px; box-shadow: 0 4px 12px rgba(0,0,0,0.1); }
    h1 { color: #667eea; margin-top: 0; border-bottom: 2px solid #667eea; padding-bottom: 12px; }
    h2 { color: #333; margin-top: 30px; font-size: 18px; border-left: 4px solid #667eea; padding-left: 12px; }
    table { width: 100%; border-collapse: collapse; margin: 20px 0; }
    th { background: #f5f7fa; padding: 12px; text-align: left; font-weight: 600; color: #333; border-bottom: 2px solid #667eea; }
    td { padding: 12px; border-bottom: 1px solid #e0e0e0; }
    .center { text-align: center; }
    .badge-high { background: #ffd6d6; color: #d70015; padding: 4px 12px; border-radius: 4px; font-weight: 600; }
    .badge-medium { background: #fffe7e; color: #ff8c00; padding: 4px 12px; border-radius: 4px; font-weight: 600; }
    .badge-low { background: #d6f4d6; color: #007a00; padding: 4px 12px; border-radius: 4px; font-weight: 600; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #e0e0e0; font-size: 12px; color: #666; }
  </style>
</head>
<body>
  <div class="container">
    <h1>Activity Tracker Report</h1>
    <p>Generated on: <strong>{{.GeneratedAt}}</strong></p>

    <h2>Time on Site</h2>
    <table>
      <thead>
        <tr><th>Domain</th><th>Time</th><th>Share</th></tr>
      </thead>
      <tbody>
        {{range .Overview.Sites}}
        <tr><td>{{.Domain}}</td><td>{{.TimeLabel}}</td><td>{{printf "%.1f" .Percent}}%</td></tr>
        {{else}}
        <tr><td colspan="3" class="center">No activity yet</td></tr>
        {{end}}
      </tbody>
    </table>

    <h2>IP Address &amp; Risk Analysis</h2>
    <table>
      <thead>
        <tr><th>Domain</th><th>IP Address</th><th>Country</th><th>ISP</th><th>Visits</th><th>Risk Level</th></tr>
      </thead>
      <tbody>
        {{range .Risks}}
        <tr>
          <td>{{.Domain}}</td><td>{{.IP}}</td><td>{{.Country}}</td><td>{{.ISP}}</td><td>{{.Visits}}</td>
          <td class="center"><span class="badge-{{.Risk.Level}}">{{upper .Risk.Level}}</span></td>
        </tr>
        {{else}}
        <tr><td colspan="6" class="center">No data available</td></tr>
        {{end}}
      </tbody>
    </table>

    <div class="footer">
      <p><strong>Note:</strong> This report contains information about visited websites and associated IP addresses. Risk assessment is based on IP geolocation, VPN/Proxy detection, and other security factors.</p>
      <p>Report generated by tabwatch</p>
    </div>
  </div>
</body>
</html>
`))

type htmlData struct {
	GeneratedAt string
	Overview    Overview
	Risks       []DomainRisk
}

// WriteHTML renders the downloadable report for the given state snapshot.
func WriteHTML(w io.Writer, activity store.Activity, tracking store.Tracking, scorer *risk.Scorer) error {
	return htmlReport.Execute(w, htmlData{
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Overview:    BuildOverview(activity),
		Risks:       DomainRisks(tracking.PageVisits, scorer),
	})
}
