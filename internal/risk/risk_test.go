package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tabwatch/tabwatch/internal/store"
)

func TestScoreLevels(t *testing.T) {
	scorer := NewScorer(nil)

	tests := []struct {
		name      string
		rec       *store.IPRecord
		wantLevel string
		wantScore int
	}{
		{
			name:      "clean residential",
			rec:       &store.IPRecord{IP: "93.184.216.34", Country: "United States", ISP: "EdgeCast"},
			wantLevel: LevelLow,
			wantScore: 0,
		},
		{
			name:      "mobile only stays low",
			rec:       &store.IPRecord{IP: "1.2.3.4", Country: "Germany", ISP: "Telekom", IsMobile: true},
			wantLevel: LevelLow,
			wantScore: 5,
		},
		{
			name:      "vpn alone is medium",
			rec:       &store.IPRecord{IP: "5.6.7.8", Country: "Netherlands", ISP: "M247", IsVPN: true, IsProxy: true},
			wantLevel: LevelMedium,
			wantScore: 15,
		},
		{
			name:      "vpn plus hosting is medium",
			rec:       &store.IPRecord{IP: "5.6.7.8", Country: "Netherlands", ISP: "M247", IsVPN: true, IsHosting: true},
			wantLevel: LevelMedium,
			wantScore: 25,
		},
		{
			name:      "vpn in high-risk country is high",
			rec:       &store.IPRecord{IP: "5.6.7.8", Country: "Iran", ISP: "ITC", IsProxy: true},
			wantLevel: LevelHigh,
			wantScore: 45,
		},
		{
			name:      "high-risk country alone is medium",
			rec:       &store.IPRecord{IP: "9.9.9.9", Country: "North Korea", ISP: "Star JV"},
			wantLevel: LevelMedium,
			wantScore: 30,
		},
		{
			name:      "everything at once",
			rec:       &store.IPRecord{IP: "9.9.9.9", Country: "Syria", ISP: "STE", IsVPN: true, IsHosting: true, IsMobile: true},
			wantLevel: LevelHigh,
			wantScore: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.rec)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.NotEmpty(t, got.Factors)
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer := NewScorer(nil)
	rec := &store.IPRecord{IP: "5.6.7.8", Country: "Iran", ISP: "ITC", IsVPN: true, IsHosting: true}

	first := scorer.Score(rec)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(rec))
	}
}

func TestScoreFactorOrder(t *testing.T) {
	scorer := NewScorer(nil)
	rec := &store.IPRecord{
		IP:        "5.6.7.8",
		Country:   "Iran",
		ISP:       "ITC",
		Org:       "Example Org",
		IsVPN:     true,
		IsHosting: true,
		IsMobile:  true,
	}

	got := scorer.Score(rec)
	assert.Equal(t, []string{
		"VPN/Proxy Detected - Connected through VPN or proxy service",
		"Data Center/Hosting - Server-based access",
		"Mobile Network - Accessed from mobile device/carrier",
		"High-risk country: Iran",
		"Location: Iran",
		"Organization: Example Org",
	}, got.Factors)
}

func TestScoreLocalhost(t *testing.T) {
	scorer := NewScorer(nil)
	rec := &store.IPRecord{IP: "127.0.0.1", Country: "Local", ISP: "Localhost", IsBogon: true}

	got := scorer.Score(rec)
	assert.Equal(t, LevelLow, got.Level)
	assert.Equal(t, 0, got.Score)
	assert.Contains(t, got.Factors, "Local network - Localhost/internal access")
}

func TestScoreUnresolved(t *testing.T) {
	scorer := NewScorer(nil)

	got := scorer.Score(nil)
	assert.Equal(t, LevelLow, got.Level)
	assert.Equal(t, []string{"Unable to verify IP information"}, got.Factors)

	got = scorer.Score(&store.IPRecord{IP: "Unknown", Error: "lookup_failed"})
	assert.Equal(t, LevelLow, got.Level)
	assert.Equal(t, []string{"Lookup failed (lookup_failed)"}, got.Factors)
}

func TestScoreCustomCountries(t *testing.T) {
	scorer := NewScorer([]string{"Atlantis"})

	got := scorer.Score(&store.IPRecord{IP: "1.1.1.1", Country: "Atlantis", ISP: "Deep"})
	assert.Equal(t, LevelMedium, got.Level)
	assert.Equal(t, 30, got.Score)

	// Default list no longer applies.
	got = scorer.Score(&store.IPRecord{IP: "1.1.1.1", Country: "Iran", ISP: "ITC"})
	assert.Equal(t, LevelLow, got.Level)
	assert.Equal(t, 0, got.Score)
}
