// Package risk classifies resolved IP records into a bounded severity
// assessment. Scoring is deterministic and side-effect free.
package risk

import (
	"fmt"

	"github.com/tabwatch/tabwatch/internal/store"
)

// Severity levels, lowest to highest.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// Score weights and level thresholds.
const (
	scoreVPNProxy = 15
	scoreHosting  = 10
	scoreMobile   = 5
	scoreCountry  = 30
	mediumAt      = 15
	highAt        = 40
)

// Assessment is the scored verdict for one IP record.
type Assessment struct {
	Level   string   `json:"level"`
	Score   int      `json:"score"`
	Factors []string `json:"factors"`
}

// Scorer assesses IP records against a configurable high-risk country set.
type Scorer struct {
	highRisk map[string]struct{}
}

// DefaultHighRiskCountries is used when no list is configured.
var DefaultHighRiskCountries = []string{"North Korea", "Iran", "Syria"}

func NewScorer(highRiskCountries []string) *Scorer {
	if len(highRiskCountries) == 0 {
		highRiskCountries = DefaultHighRiskCountries
	}
	set := make(map[string]struct{}, len(highRiskCountries))
	for _, c := range highRiskCountries {
		set[c] = struct{}{}
	}
	return &Scorer{highRisk: set}
}

// Score assesses a single IP record. A nil or unresolved record scores low
// with an explanatory factor.
func (s *Scorer) Score(rec *store.IPRecord) Assessment {
	if rec == nil || rec.IP == "Unknown" {
		msg := "Unable to verify IP information"
		if rec != nil && rec.Error != "" {
			msg = fmt.Sprintf("Lookup failed (%s)", rec.Error)
		}
		return Assessment{Level: LevelLow, Score: 0, Factors: []string{msg}}
	}

	if rec.IsBogon && (rec.Country == "Local" || rec.IP == "127.0.0.1") {
		return Assessment{
			Level: LevelLow,
			Score: 0,
			Factors: []string{
				"Local network - Localhost/internal access",
				fmt.Sprintf("IP: %s", rec.IP),
			},
		}
	}

	score := 0
	var factors []string

	if rec.IsVPN || rec.IsProxy {
		score += scoreVPNProxy
		factors = append(factors, "VPN/Proxy Detected - Connected through VPN or proxy service")
	}
	if rec.IsHosting {
		score += scoreHosting
		factors = append(factors, "Data Center/Hosting - Server-based access")
	}
	if rec.IsMobile {
		score += scoreMobile
		factors = append(factors, "Mobile Network - Accessed from mobile device/carrier")
	}
	if _, ok := s.highRisk[rec.Country]; ok {
		score += scoreCountry
		factors = append(factors, fmt.Sprintf("High-risk country: %s", rec.Country))
	}

	country := rec.Country
	if country == "" {
		country = "Unknown"
	}
	factors = append(factors, fmt.Sprintf("Location: %s", country))
	if rec.Org != "" {
		factors = append(factors, fmt.Sprintf("Organization: %s", rec.Org))
	} else if rec.ISP != "" {
		factors = append(factors, fmt.Sprintf("ISP: %s", rec.ISP))
	} else {
		factors = append(factors, "ISP: Unknown")
	}

	level := LevelLow
	switch {
	case score >= highAt:
		level = LevelHigh
	case score >= mediumAt:
		level = LevelMedium
	}

	return Assessment{Level: level, Score: score, Factors: factors}
}
