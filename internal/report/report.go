// Package report turns aggregated tracking state into human-readable
// summaries: dwell-time overviews, per-domain risk tables and the textual
// summary fed to the behavioral summarizer.
package report

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/tabwatch/tabwatch/internal/risk"
	"github.com/tabwatch/tabwatch/internal/store"
)

// Domain extracts the hostname from a URL, stripping a leading "www.".
// Unparseable input is returned unchanged.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// FormatDuration renders milliseconds as "N min" below an hour and
// "X.Y hr" above.
func FormatDuration(ms int64) string {
	minutes := math.Round(float64(ms) / 60000)
	if minutes < 60 {
		return fmt.Sprintf("%d min", int64(minutes))
	}
	return fmt.Sprintf("%.1f hr", minutes/60)
}

// SiteStat is the dwell-time share of one domain.
type SiteStat struct {
	Domain    string  `json:"domain"`
	TimeMs    int64   `json:"time_ms"`
	TimeLabel string  `json:"time_label"`
	Percent   float64 `json:"percent"`
}

// Overview is the time-on-site report across all tracked domains.
type Overview struct {
	TotalMs    int64      `json:"total_ms"`
	TotalLabel string     `json:"total_label"`
	Sites      []SiteStat `json:"sites"`
}

// DomainActivity folds the per-URL dwell map into per-domain totals.
func DomainActivity(activity store.Activity) map[string]int64 {
	domains := make(map[string]int64)
	for rawURL, ms := range activity {
		domains[Domain(rawURL)] += ms
	}
	return domains
}

// BuildOverview aggregates the dwell map per domain, sorted by time spent.
func BuildOverview(activity store.Activity) Overview {
	domains := DomainActivity(activity)

	var total int64
	for _, ms := range domains {
		total += ms
	}

	sites := make([]SiteStat, 0, len(domains))
	for domain, ms := range domains {
		stat := SiteStat{Domain: domain, TimeMs: ms, TimeLabel: FormatDuration(ms)}
		if total > 0 {
			stat.Percent = math.Round(float64(ms)/float64(total)*1000) / 10
		}
		sites = append(sites, stat)
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].TimeMs != sites[j].TimeMs {
			return sites[i].TimeMs > sites[j].TimeMs
		}
		return sites[i].Domain < sites[j].Domain
	})

	return Overview{TotalMs: total, TotalLabel: FormatDuration(total), Sites: sites}
}

// DomainRisk is the risk assessment of one visited domain.
type DomainRisk struct {
	Domain  string          `json:"domain"`
	IP      string          `json:"ip"`
	Country string          `json:"country"`
	ISP     string          `json:"isp"`
	Visits  int             `json:"visits"`
	Risk    risk.Assessment `json:"risk"`
}

// DomainRisks groups page visits by domain, keeping the first resolved IP
// record per domain, and scores each group. Order follows first visit.
func DomainRisks(visits []store.PageVisit, scorer *risk.Scorer) []DomainRisk {
	index := make(map[string]int)
	var out []DomainRisk

	for _, v := range visits {
		key := v.URL
		if key == "" {
			key = v.Domain
		}
		domain := Domain(key)

		i, ok := index[domain]
		if !ok {
			i = len(out)
			index[domain] = i
			out = append(out, DomainRisk{
				Domain:  domain,
				IP:      "Unknown",
				Country: "Unknown",
				ISP:     "Unknown",
				Risk:    scorer.Score(v.IPData),
			})
			if v.IPData != nil {
				out[i].IP = v.IPData.IP
				out[i].Country = v.IPData.Country
				out[i].ISP = v.IPData.ISP
			}
		}
		out[i].Visits++
	}

	return out
}

// TrackingSummary renders the markdown digest of all tracking collections
// that is passed to the summarizer alongside the raw activity data.
func TrackingSummary(t store.Tracking) string {
	var b strings.Builder

	if len(t.PageVisits) > 0 {
		writeVisitSummary(&b, t.PageVisits)
	}
	if len(t.MediaAccess) > 0 {
		writeMediaSummary(&b, t.MediaAccess)
	}
	if len(t.Autofill) > 0 {
		writeAutofillSummary(&b, t.Autofill)
	}
	if len(t.SensitiveFields) > 0 {
		writeSensitiveSummary(&b, t.SensitiveFields)
	}

	if b.Len() == 0 {
		return "No tracking data collected yet."
	}
	return b.String()
}

func writeVisitSummary(b *strings.Builder, visits []store.PageVisit) {
	domains := make(map[string]struct{})
	for _, v := range visits {
		domains[v.Domain] = struct{}{}
	}

	fmt.Fprintf(b, "## Pages Visited & IP Information\n")
	fmt.Fprintf(b, "- Total page visits tracked: %d\n", len(visits))
	fmt.Fprintf(b, "- Unique domains: %d\n", len(domains))

	type domainIP struct {
		rec    *store.IPRecord
		visits int
	}
	index := make(map[string]*domainIP)
	var order []string
	for _, v := range visits {
		if v.IPData == nil {
			continue
		}
		entry, ok := index[v.Domain]
		if !ok {
			entry = &domainIP{rec: v.IPData}
			index[v.Domain] = entry
			order = append(order, v.Domain)
		}
		entry.visits++
	}

	if len(order) > 0 {
		b.WriteString("\n### Domain IP Details:\n")
		for _, domain := range order {
			entry := index[domain]
			var indicators []string
			if entry.rec.IsVPN {
				indicators = append(indicators, "VPN")
			}
			if entry.rec.IsProxy {
				indicators = append(indicators, "Proxy")
			}
			riskStr := ""
			if len(indicators) > 0 {
				riskStr = fmt.Sprintf(" [%s]", strings.Join(indicators, ", "))
			}
			fmt.Fprintf(b, "- %s: IP %s (%s)%s\n", domain, entry.rec.IP, entry.rec.Country, riskStr)
		}
	}
	b.WriteString("\n")
}

func writeMediaSummary(b *strings.Builder, media []store.MediaEvent) {
	var camera, mic, denied int
	for _, m := range media {
		for _, mt := range m.MediaTypes {
			if strings.Contains(mt, "camera") || mt == "video" {
				camera++
			}
			if strings.Contains(mt, "microphone") || mt == "audio" {
				mic++
			}
		}
		if m.Event == "denied" {
			denied++
		}
	}

	b.WriteString("## Media Device Access\n")
	fmt.Fprintf(b, "- Camera accessed: %d time(s)\n", camera)
	fmt.Fprintf(b, "- Microphone accessed: %d time(s)\n", mic)
	if denied > 0 {
		fmt.Fprintf(b, "- Access denied: %d time(s)\n", denied)
	}
	b.WriteString("\n")
}

func writeAutofillSummary(b *strings.Builder, autofill []store.AutofillEvent) {
	var detected, submitted, totalFields int
	fieldTypes := make(map[string]int)
	var typeOrder []string

	for _, af := range autofill {
		switch af.Event {
		case "detected":
			detected++
			if _, ok := fieldTypes[af.FieldType]; !ok {
				typeOrder = append(typeOrder, af.FieldType)
			}
			fieldTypes[af.FieldType]++
		case "submitted":
			submitted++
			totalFields += af.FieldCount
		}
	}

	b.WriteString("## Autofill Usage\n")
	fmt.Fprintf(b, "- Autofilled fields detected: %d\n", detected)
	if submitted > 0 {
		fmt.Fprintf(b, "- Forms submitted with autofilled data: %d\n", submitted)
		fmt.Fprintf(b, "- Total autofilled fields in submissions: %d\n", totalFields)
	}
	if len(typeOrder) > 0 {
		parts := make([]string, 0, len(typeOrder))
		for _, ft := range typeOrder {
			parts = append(parts, fmt.Sprintf("%s (%d)", ft, fieldTypes[ft]))
		}
		fmt.Fprintf(b, "- Autofilled field types: %s\n", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

func writeSensitiveSummary(b *strings.Builder, fields []store.SensitiveFieldEvent) {
	counts := make(map[string]int)
	var order []string
	for _, f := range fields {
		if _, ok := counts[f.FieldType]; !ok {
			order = append(order, f.FieldType)
		}
		counts[f.FieldType]++
	}

	b.WriteString("## Sensitive Fields Encountered\n")
	for _, ft := range order {
		fmt.Fprintf(b, "- %s fields: %d page(s)\n", ft, counts[ft])
	}
	b.WriteString("\n")
}
