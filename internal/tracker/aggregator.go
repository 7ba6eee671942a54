// Package tracker ingests browser tracking events into the durable store.
// Events are consumed one at a time from a bounded queue; page visits pass
// through a dedicated resolution worker so that IP enrichment never blocks
// the other collections.
package tracker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tabwatch/tabwatch/internal/event"
	"github.com/tabwatch/tabwatch/internal/store"
)

// IPResolver resolves a domain to a geolocation record. It never fails;
// degraded records carry an error string instead.
type IPResolver interface {
	Resolve(ctx context.Context, domain string) *store.IPRecord
}

// Archiver receives every appended event for long-term storage. All methods
// must be non-blocking.
type Archiver interface {
	ArchivePageVisit(v store.PageVisit)
	ArchiveMedia(m store.MediaEvent)
	ArchiveAutofill(a store.AutofillEvent)
	ArchiveSensitiveField(f store.SensitiveFieldEvent)
}

// Aggregator is the event ingestion state machine. Append order within each
// collection matches ingestion order; across collections interleaving is
// best-effort because page-visit enrichment is asynchronous.
type Aggregator struct {
	store    *store.Store
	resolver IPResolver
	archive  Archiver
	focus    *FocusTracker

	events chan event.Event
	visits chan event.Event
	wg     sync.WaitGroup

	stopMu  sync.RWMutex
	stopped bool

	mu   sync.Mutex
	tabs map[int64]string
}

// New starts an aggregator draining from its ingestion queue. resolver and
// archive may be nil.
func New(st *store.Store, resolver IPResolver, archive Archiver) *Aggregator {
	a := &Aggregator{
		store:    st,
		resolver: resolver,
		archive:  archive,
		events:   make(chan event.Event, 256),
		visits:   make(chan event.Event, 64),
		tabs:     make(map[int64]string),
	}
	a.focus = NewFocusTracker(st, a)

	a.wg.Add(2)
	go a.run()
	go a.resolveVisits()

	return a
}

// Ingest queues one event for processing. Safe for concurrent use, including
// concurrently with Stop; events arriving after Stop are dropped.
func (a *Aggregator) Ingest(ev event.Event) {
	a.stopMu.RLock()
	defer a.stopMu.RUnlock()
	if a.stopped {
		log.Debug().Str("type", string(ev.Type)).Msg("Dropping event after shutdown")
		return
	}
	a.events <- ev
}

// Process implements consumer.MessageProcessor.
func (a *Aggregator) Process(_ context.Context, raw map[string]interface{}) error {
	a.Ingest(event.Parse(raw))
	return nil
}

// Stop drains both queues and waits for in-flight appends to finish.
// Idempotent.
func (a *Aggregator) Stop() {
	a.stopMu.Lock()
	if a.stopped {
		a.stopMu.Unlock()
		return
	}
	a.stopped = true
	close(a.events)
	a.stopMu.Unlock()

	a.wg.Wait()
}

// TabURL implements TabQuerier from the tab registry maintained by page
// visits.
func (a *Aggregator) TabURL(tabID int64) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	url, ok := a.tabs[tabID]
	return url, ok
}

func (a *Aggregator) run() {
	defer a.wg.Done()
	ctx := context.Background()

	for ev := range a.events {
		a.handle(ctx, ev)
	}
	close(a.visits)
}

func (a *Aggregator) handle(ctx context.Context, ev event.Event) {
	switch ev.Type {
	case event.TypePageVisit:
		if ev.TabID != 0 {
			a.mu.Lock()
			a.tabs[ev.TabID] = ev.URL
			a.mu.Unlock()
		}
		a.visits <- ev

	case event.TypeMediaStarted:
		a.appendMedia(ctx, store.MediaEvent{
			Event:      "started",
			MediaTypes: ev.MediaTypes,
			URL:        ev.URL,
			Domain:     ev.Domain,
			Timestamp:  ev.Timestamp,
		})

	case event.TypeMediaEnded:
		a.appendMedia(ctx, store.MediaEvent{
			Event:      "ended",
			MediaTypes: ev.MediaTypes,
			DurationMs: ev.DurationMs,
			URL:        ev.URL,
			Domain:     ev.Domain,
			Timestamp:  ev.Timestamp,
		})

	case event.TypeMediaDenied:
		a.appendMedia(ctx, store.MediaEvent{
			Event:     "denied",
			Error:     ev.Error,
			URL:       ev.URL,
			Domain:    ev.Domain,
			Timestamp: ev.Timestamp,
		})

	case event.TypeAutofillDetected:
		a.appendAutofill(ctx, store.AutofillEvent{
			Event:       "detected",
			FieldType:   ev.FieldType,
			FieldName:   ev.FieldName,
			Placeholder: ev.Placeholder,
			URL:         ev.URL,
			Domain:      ev.Domain,
			Timestamp:   ev.Timestamp,
		})

	case event.TypeAutofillSubmitted:
		a.appendAutofill(ctx, store.AutofillEvent{
			Event:      "submitted",
			FieldCount: ev.FieldCount,
			Fields:     formFields(ev.Fields),
			URL:        ev.URL,
			Domain:     ev.Domain,
			Timestamp:  ev.Timestamp,
		})

	case event.TypeSensitiveField:
		field := store.SensitiveFieldEvent{
			FieldType: ev.FieldType,
			Count:     ev.Count,
			URL:       ev.URL,
			Domain:    ev.Domain,
			Timestamp: ev.Timestamp,
		}
		a.store.AppendSensitiveField(ctx, field)
		if a.archive != nil {
			a.archive.ArchiveSensitiveField(field)
		}

	case event.TypeTabActivated:
		a.focus.TabActivated(ctx, ev.TabID, ev.Timestamp)

	case event.TypeTabNavigated:
		a.focus.NavigationCompleted(ctx, ev.TabID, ev.Status, ev.Timestamp)

	default:
		log.Debug().Str("type", string(ev.Type)).Msg("Ignoring unknown event kind")
	}
}

func (a *Aggregator) appendMedia(ctx context.Context, m store.MediaEvent) {
	a.store.AppendMedia(ctx, m)
	if a.archive != nil {
		a.archive.ArchiveMedia(m)
	}
}

func (a *Aggregator) appendAutofill(ctx context.Context, af store.AutofillEvent) {
	a.store.AppendAutofill(ctx, af)
	if a.archive != nil {
		a.archive.ArchiveAutofill(af)
	}
}

// resolveVisits enriches and appends page visits in ingestion order. Later
// visits to a resolved domain reuse the resolver's cached record.
func (a *Aggregator) resolveVisits() {
	defer a.wg.Done()
	ctx := context.Background()

	for ev := range a.visits {
		visit := store.PageVisit{
			URL:       ev.URL,
			Domain:    ev.Domain,
			Timestamp: ev.Timestamp,
			Browser:   ev.Browser,
			OS:        ev.OS,
		}
		if a.resolver != nil && ev.Domain != "" {
			visit.IPData = a.resolver.Resolve(ctx, ev.Domain)
		}

		a.store.AppendPageVisit(ctx, visit)
		if a.archive != nil {
			a.archive.ArchivePageVisit(visit)
		}
	}
}

func formFields(fields []event.FormField) []store.FormField {
	if len(fields) == 0 {
		return nil
	}
	out := make([]store.FormField, len(fields))
	for i, f := range fields {
		out[i] = store.FormField{Type: f.Type, Name: f.Name}
	}
	return out
}
