package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Persisted record keys. Each is read and written independently.
const (
	KeyActivity = "activity"
	KeyTracking = "tracking"
	KeyAnalysis = "cachedAnalysis"
)

// KV is the durable key-value capability backing the store. Implementations
// make no transactional guarantees across keys.
type KV interface {
	Get(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, pairs map[string][]byte) error
}

// IPRecord holds the resolved IP and geolocation metadata embedded into a
// page visit. A failed resolution produces a record with IP "Unknown" and a
// non-empty Error instead of an error value.
type IPRecord struct {
	IP        string `json:"ip"`
	Country   string `json:"country"`
	ISP       string `json:"isp"`
	Org       string `json:"org,omitempty"`
	IsVPN     bool   `json:"isVPN"`
	IsProxy   bool   `json:"isProxy"`
	IsBogon   bool   `json:"isBogon"`
	IsHosting bool   `json:"isHosting"`
	IsMobile  bool   `json:"isMobile"`
	Error     string `json:"error,omitempty"`
}

// PageVisit is one tracked page load.
type PageVisit struct {
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	Timestamp int64     `json:"timestamp"`
	Browser   string    `json:"browser,omitempty"`
	OS        string    `json:"os,omitempty"`
	IPData    *IPRecord `json:"ipData,omitempty"`
}

// MediaEvent records camera/microphone access: started, ended or denied.
type MediaEvent struct {
	Event      string   `json:"event"`
	MediaTypes []string `json:"mediaType,omitempty"`
	DurationMs int64    `json:"duration,omitempty"`
	Error      string   `json:"error,omitempty"`
	URL        string   `json:"url"`
	Domain     string   `json:"domain"`
	Timestamp  int64    `json:"timestamp"`
}

// FormField identifies one autofilled input inside a submitted form.
type FormField struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// AutofillEvent records autofill activity: detected on a field, or submitted
// as part of a form.
type AutofillEvent struct {
	Event       string      `json:"event"`
	FieldType   string      `json:"fieldType,omitempty"`
	FieldName   string      `json:"fieldName,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	FieldCount  int         `json:"autofilledFieldCount,omitempty"`
	Fields      []FormField `json:"fields,omitempty"`
	URL         string      `json:"url"`
	Domain      string      `json:"domain"`
	Timestamp   int64       `json:"timestamp"`
}

// SensitiveFieldEvent records sensitive inputs (password, email, payment)
// present on a page.
type SensitiveFieldEvent struct {
	FieldType string `json:"fieldType"`
	Count     int    `json:"count"`
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Timestamp int64  `json:"timestamp"`
}

// Tracking holds the four append-only event collections. Entries are never
// mutated or removed once appended.
type Tracking struct {
	PageVisits      []PageVisit           `json:"pageVisits"`
	MediaAccess     []MediaEvent          `json:"mediaAccess"`
	Autofill        []AutofillEvent       `json:"autofill"`
	SensitiveFields []SensitiveFieldEvent `json:"sensitiveFields"`
}

// Activity maps a URL to accumulated foreground milliseconds.
type Activity map[string]int64

// Store owns the in-memory tracking state and writes it through to the KV
// capability after every mutation. Persistence is best-effort: a failed
// write is logged and the in-memory mutation stands.
type Store struct {
	kv KV

	mu       sync.Mutex
	activity Activity
	tracking Tracking
	analysis string
}

// Open loads any previously persisted state from kv. Missing or corrupt
// records start empty.
func Open(ctx context.Context, kv KV) (*Store, error) {
	s := &Store{
		kv:       kv,
		activity: make(Activity),
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh re-reads all persisted records from the KV capability, replacing
// the in-memory state.
func (s *Store) Refresh(ctx context.Context) error {
	data, err := s.kv.Get(ctx, []string{KeyActivity, KeyTracking, KeyAnalysis})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity = make(Activity)
	if raw, ok := data[KeyActivity]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.activity); err != nil {
			log.Warn().Err(err).Str("key", KeyActivity).Msg("Discarding unreadable activity record")
			s.activity = make(Activity)
		}
	}

	s.tracking = Tracking{}
	if raw, ok := data[KeyTracking]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.tracking); err != nil {
			log.Warn().Err(err).Str("key", KeyTracking).Msg("Discarding unreadable tracking record")
			s.tracking = Tracking{}
		}
	}

	s.analysis = ""
	if raw, ok := data[KeyAnalysis]; ok && len(raw) > 0 {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			s.analysis = text
		}
	}

	return nil
}

// AppendPageVisit appends to the pageVisits collection.
func (s *Store) AppendPageVisit(ctx context.Context, v PageVisit) {
	s.mu.Lock()
	s.tracking.PageVisits = append(s.tracking.PageVisits, v)
	s.mu.Unlock()
	s.persistTracking(ctx)
}

// AppendMedia appends to the mediaAccess collection.
func (s *Store) AppendMedia(ctx context.Context, m MediaEvent) {
	s.mu.Lock()
	s.tracking.MediaAccess = append(s.tracking.MediaAccess, m)
	s.mu.Unlock()
	s.persistTracking(ctx)
}

// AppendAutofill appends to the autofill collection.
func (s *Store) AppendAutofill(ctx context.Context, a AutofillEvent) {
	s.mu.Lock()
	s.tracking.Autofill = append(s.tracking.Autofill, a)
	s.mu.Unlock()
	s.persistTracking(ctx)
}

// AppendSensitiveField appends to the sensitiveFields collection.
func (s *Store) AppendSensitiveField(ctx context.Context, f SensitiveFieldEvent) {
	s.mu.Lock()
	s.tracking.SensitiveFields = append(s.tracking.SensitiveFields, f)
	s.mu.Unlock()
	s.persistTracking(ctx)
}

// AddDwell adds a non-negative duration to the dwell-time entry for url.
func (s *Store) AddDwell(ctx context.Context, url string, ms int64) {
	if ms < 0 {
		return
	}
	s.mu.Lock()
	s.activity[url] += ms
	s.mu.Unlock()
	s.persist(ctx, KeyActivity)
}

// SetAnalysis caches the latest successful summarizer output.
func (s *Store) SetAnalysis(ctx context.Context, text string) {
	s.mu.Lock()
	s.analysis = text
	s.mu.Unlock()
	s.persist(ctx, KeyAnalysis)
}

// Analysis returns the cached summarizer output, if any.
func (s *Store) Analysis() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis
}

// Snapshot returns copies of the dwell map and tracking collections. The
// copies are safe to read while ingestion continues.
func (s *Store) Snapshot() (Activity, Tracking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity := make(Activity, len(s.activity))
	for url, ms := range s.activity {
		activity[url] = ms
	}

	t := Tracking{
		PageVisits:      append([]PageVisit(nil), s.tracking.PageVisits...),
		MediaAccess:     append([]MediaEvent(nil), s.tracking.MediaAccess...),
		Autofill:        append([]AutofillEvent(nil), s.tracking.Autofill...),
		SensitiveFields: append([]SensitiveFieldEvent(nil), s.tracking.SensitiveFields...),
	}
	return activity, t
}

func (s *Store) persistTracking(ctx context.Context) {
	s.persist(ctx, KeyTracking)
}

func (s *Store) persist(ctx context.Context, key string) {
	s.mu.Lock()
	var value interface{}
	switch key {
	case KeyActivity:
		value = s.activity
	case KeyTracking:
		value = s.tracking
	case KeyAnalysis:
		value = s.analysis
	}
	s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to encode record")
		return
	}

	if err := s.kv.Set(ctx, map[string][]byte{key: data}); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to persist record")
	}
}
