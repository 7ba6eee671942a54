// Package archive batches tracking events into ClickHouse for long-term
// analysis. The archive is optional; the tracker runs without it.
package archive

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"

	"github.com/tabwatch/tabwatch/internal/config"
	"github.com/tabwatch/tabwatch/internal/store"
)

// ClickHouse buffers events per collection and flushes them in batches,
// either when a buffer fills or on the flush interval.
type ClickHouse struct {
	conn      driver.Conn
	batchSize int

	mu           sync.Mutex
	visitBuf     []store.PageVisit
	mediaBuf     []store.MediaEvent
	autofillBuf  []store.AutofillEvent
	sensitiveBuf []store.SensitiveFieldEvent

	ticker *time.Ticker
	done   chan struct{}
}

func New(cfg config.ClickHouseConfig, batch config.BatchConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	a := &ClickHouse{
		conn:      conn,
		batchSize: batch.Size,
		visitBuf:  make([]store.PageVisit, 0, batch.Size),
		ticker:    time.NewTicker(batch.FlushInterval),
		done:      make(chan struct{}),
	}
	go a.flushLoop()

	return a, nil
}

func (a *ClickHouse) ArchivePageVisit(v store.PageVisit) {
	a.mu.Lock()
	a.visitBuf = append(a.visitBuf, v)
	shouldFlush := len(a.visitBuf) >= a.batchSize
	a.mu.Unlock()

	if shouldFlush {
		a.Flush()
	}
}

func (a *ClickHouse) ArchiveMedia(m store.MediaEvent) {
	a.mu.Lock()
	a.mediaBuf = append(a.mediaBuf, m)
	shouldFlush := len(a.mediaBuf) >= a.batchSize
	a.mu.Unlock()

	if shouldFlush {
		a.Flush()
	}
}

func (a *ClickHouse) ArchiveAutofill(af store.AutofillEvent) {
	a.mu.Lock()
	a.autofillBuf = append(a.autofillBuf, af)
	shouldFlush := len(a.autofillBuf) >= a.batchSize
	a.mu.Unlock()

	if shouldFlush {
		a.Flush()
	}
}

func (a *ClickHouse) ArchiveSensitiveField(f store.SensitiveFieldEvent) {
	a.mu.Lock()
	a.sensitiveBuf = append(a.sensitiveBuf, f)
	shouldFlush := len(a.sensitiveBuf) >= a.batchSize
	a.mu.Unlock()

	if shouldFlush {
		a.Flush()
	}
}

func (a *ClickHouse) flushLoop() {
	for {
		select {
		case <-a.done:
			return
		case <-a.ticker.C:
			a.Flush()
		}
	}
}

// Flush writes all buffered rows. Insert failures are logged; the rows are
// dropped rather than retried.
func (a *ClickHouse) Flush() {
	a.mu.Lock()
	if len(a.visitBuf) == 0 && len(a.mediaBuf) == 0 && len(a.autofillBuf) == 0 && len(a.sensitiveBuf) == 0 {
		a.mu.Unlock()
		return
	}

	visits := a.visitBuf
	media := a.mediaBuf
	autofill := a.autofillBuf
	sensitive := a.sensitiveBuf

	a.visitBuf = make([]store.PageVisit, 0, a.batchSize)
	a.mediaBuf = nil
	a.autofillBuf = nil
	a.sensitiveBuf = nil
	a.mu.Unlock()

	ctx := context.Background()

	if len(visits) > 0 {
		if err := a.insertVisits(ctx, visits); err != nil {
			log.Error().Err(err).Int("count", len(visits)).Msg("Failed to archive page visits")
		} else {
			log.Debug().Int("count", len(visits)).Msg("Archived page visits")
		}
	}
	if len(media) > 0 {
		if err := a.insertMedia(ctx, media); err != nil {
			log.Error().Err(err).Int("count", len(media)).Msg("Failed to archive media events")
		}
	}
	if len(autofill) > 0 {
		if err := a.insertAutofill(ctx, autofill); err != nil {
			log.Error().Err(err).Int("count", len(autofill)).Msg("Failed to archive autofill events")
		}
	}
	if len(sensitive) > 0 {
		if err := a.insertSensitive(ctx, sensitive); err != nil {
			log.Error().Err(err).Int("count", len(sensitive)).Msg("Failed to archive sensitive field events")
		}
	}
}

func (a *ClickHouse) insertVisits(ctx context.Context, visits []store.PageVisit) error {
	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO page_visits (
			url, domain, timestamp, browser, os,
			ip, country, isp, org,
			is_vpn, is_proxy, is_bogon, is_hosting, is_mobile
		)
	`)
	if err != nil {
		return err
	}

	for _, v := range visits {
		ip := store.IPRecord{}
		if v.IPData != nil {
			ip = *v.IPData
		}
		err := batch.Append(
			v.URL, v.Domain, time.UnixMilli(v.Timestamp), v.Browser, v.OS,
			ip.IP, ip.Country, ip.ISP, ip.Org,
			ip.IsVPN, ip.IsProxy, ip.IsBogon, ip.IsHosting, ip.IsMobile,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (a *ClickHouse) insertMedia(ctx context.Context, media []store.MediaEvent) error {
	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO media_events (
			event, media_types, duration_ms, error, url, domain, timestamp
		)
	`)
	if err != nil {
		return err
	}

	for _, m := range media {
		err := batch.Append(
			m.Event, m.MediaTypes, m.DurationMs, m.Error,
			m.URL, m.Domain, time.UnixMilli(m.Timestamp),
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (a *ClickHouse) insertAutofill(ctx context.Context, events []store.AutofillEvent) error {
	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO autofill_events (
			event, field_type, field_name, field_count, field_names,
			url, domain, timestamp
		)
	`)
	if err != nil {
		return err
	}

	for _, af := range events {
		names := make([]string, 0, len(af.Fields))
		for _, f := range af.Fields {
			name := f.Name
			if name == "" {
				name = f.Type
			}
			names = append(names, name)
		}
		err := batch.Append(
			af.Event, af.FieldType, af.FieldName, uint32(af.FieldCount),
			strings.Join(names, ","),
			af.URL, af.Domain, time.UnixMilli(af.Timestamp),
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (a *ClickHouse) insertSensitive(ctx context.Context, fields []store.SensitiveFieldEvent) error {
	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO sensitive_field_events (
			field_type, count, url, domain, timestamp
		)
	`)
	if err != nil {
		return err
	}

	for _, f := range fields {
		err := batch.Append(
			f.FieldType, uint32(f.Count), f.URL, f.Domain, time.UnixMilli(f.Timestamp),
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// Close flushes pending rows and closes the connection.
func (a *ClickHouse) Close() error {
	a.ticker.Stop()
	close(a.done)
	a.Flush()
	return a.conn.Close()
}
