// Package resolver maps a visited domain to an IP and geolocation record.
// Lookups follow a layered fallback chain (direct geolocation, DNS, local
// GeoIP database) and every failure degrades to a well-formed record rather
// than an error.
package resolver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"github.com/tabwatch/tabwatch/internal/store"
)

const (
	ipUnknown = "Unknown"

	errCachedFailed = "lookup_cached_failed"
	errFailed       = "lookup_failed"
)

// DNSClient resolves host addresses. *net.Resolver satisfies it.
type DNSClient interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Options configures a Resolver. Geo is required; everything else has a
// default.
type Options struct {
	Geo GeoClient
	DNS DNSClient

	// GeoDB is an optional local GeoIP2 database consulted when the network
	// lookup yields nothing for a resolved IP.
	GeoDB *geoip2.Reader

	// Timeout bounds each individual network step. Default 3s.
	Timeout time.Duration

	// FailureCooldown is how long a failed domain short-circuits to a
	// synthetic failure record. Default 1h.
	FailureCooldown time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Resolver resolves domains with a permanent positive cache and a
// time-expiring negative cache. Safe for concurrent use; concurrent calls
// for the same uncached domain may duplicate network lookups.
type Resolver struct {
	geo      GeoClient
	dns      DNSClient
	geoDB    *geoip2.Reader
	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	records  map[string]*store.IPRecord
	failures map[string]time.Time
}

func New(opts Options) *Resolver {
	r := &Resolver{
		geo:      opts.Geo,
		dns:      opts.DNS,
		geoDB:    opts.GeoDB,
		timeout:  opts.Timeout,
		cooldown: opts.FailureCooldown,
		now:      opts.Now,
		records:  make(map[string]*store.IPRecord),
		failures: make(map[string]time.Time),
	}
	if r.dns == nil {
		r.dns = net.DefaultResolver
	}
	if r.timeout == 0 {
		r.timeout = 3 * time.Second
	}
	if r.cooldown == 0 {
		r.cooldown = time.Hour
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve returns the geolocation record for domain. It never fails: a
// degraded record with IP "Unknown" and a populated Error is returned when
// the fallback chain is exhausted.
func (r *Resolver) Resolve(ctx context.Context, domain string) *store.IPRecord {
	now := r.now()

	r.mu.Lock()
	if rec, ok := r.records[domain]; ok {
		r.mu.Unlock()
		return rec
	}
	if failedAt, ok := r.failures[domain]; ok {
		if now.Sub(failedAt) < r.cooldown {
			r.mu.Unlock()
			return &store.IPRecord{IP: ipUnknown, Error: errCachedFailed}
		}
		delete(r.failures, domain)
	}
	r.mu.Unlock()

	if domain == "localhost" || domain == "127.0.0.1" {
		rec := &store.IPRecord{IP: "127.0.0.1", Country: "Local", ISP: "Localhost", IsBogon: true}
		r.cache(domain, rec)
		return rec
	}

	// The geolocation service accepts a resolvable host directly.
	if rec := r.geoLookup(ctx, domain); rec != nil {
		r.cache(domain, rec)
		return rec
	}

	if ip := r.lookupIPv4(ctx, domain); ip != "" {
		if rec := r.geoLookup(ctx, ip); rec != nil {
			if rec.IP == "" {
				rec.IP = ip
			}
			r.cache(domain, rec)
			return rec
		}
		if rec := r.geoDBLookup(ip); rec != nil {
			r.cache(domain, rec)
			return rec
		}

		// An IP but no geolocation data from any source.
		rec := &store.IPRecord{IP: ip, Country: ipUnknown, ISP: ipUnknown}
		r.cache(domain, rec)
		return rec
	}

	r.mu.Lock()
	r.failures[domain] = now
	r.mu.Unlock()

	log.Debug().Str("domain", domain).Msg("IP resolution failed, cooling down")
	return &store.IPRecord{IP: ipUnknown, Error: errFailed}
}

// ResetCache drops both caches.
func (r *Resolver) ResetCache() {
	r.mu.Lock()
	r.records = make(map[string]*store.IPRecord)
	r.failures = make(map[string]time.Time)
	r.mu.Unlock()
}

func (r *Resolver) cache(domain string, rec *store.IPRecord) {
	r.mu.Lock()
	r.records[domain] = rec
	r.mu.Unlock()
}

func (r *Resolver) geoLookup(ctx context.Context, host string) *store.IPRecord {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	geo, err := r.geo.Lookup(ctx, host)
	if err != nil {
		// Rate limits, blocks and timeouts all mean "no data here", not a
		// hard failure.
		log.Debug().Err(err).Str("host", host).Msg("Geolocation lookup yielded no data")
		return nil
	}

	return &store.IPRecord{
		IP:        geo.IP,
		Country:   geo.Country,
		ISP:       geo.ISP,
		Org:       geo.Org,
		IsVPN:     geo.Proxy,
		IsProxy:   geo.Proxy,
		IsHosting: geo.Hosting,
		IsMobile:  geo.Mobile,
	}
}

func (r *Resolver) lookupIPv4(ctx context.Context, domain string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.dns.LookupIPAddr(ctx, domain)
	if err != nil {
		log.Debug().Err(err).Str("domain", domain).Msg("DNS lookup failed")
		return ""
	}
	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

func (r *Resolver) geoDBLookup(ip string) *store.IPRecord {
	if r.geoDB == nil {
		return nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil
	}
	city, err := r.geoDB.City(parsed)
	if err != nil {
		return nil
	}

	country := city.Country.Names["en"]
	if country == "" {
		return nil
	}
	return &store.IPRecord{IP: ip, Country: country, ISP: ipUnknown}
}
