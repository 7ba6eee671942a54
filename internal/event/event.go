package event

// Type identifies one of the tracking event kinds emitted by the browser
// extension. Kinds outside this set are ignored by the aggregator.
type Type string

const (
	TypePageVisit         Type = "page_visit"
	TypeMediaStarted      Type = "media_access_started"
	TypeMediaEnded        Type = "media_access_ended"
	TypeMediaDenied       Type = "media_access_denied"
	TypeAutofillDetected  Type = "autofill_detected"
	TypeAutofillSubmitted Type = "autofill_submitted"
	TypeSensitiveField    Type = "sensitive_field_detected"

	// Tab focus transitions, delivered on the same channel as tracking
	// events. TabNavigated fires when a navigation finishes loading.
	TypeTabActivated Type = "tab_activated"
	TypeTabNavigated Type = "tab_navigation_completed"
)

// FormField identifies one autofilled input in a submitted form.
type FormField struct {
	Type string
	Name string
}

// Event is a single tracking or tab-focus event. Only the fields relevant to
// the kind are populated; the rest keep zero values.
type Event struct {
	EventID   string
	Type      Type
	URL       string
	Domain    string
	Timestamp int64 // unix ms

	// Page visit / tab focus
	TabID   int64
	Status  string
	Browser string
	OS      string

	// Media access
	MediaTypes []string
	DurationMs int64
	Error      string

	// Autofill
	FieldType   string
	FieldName   string
	Placeholder string
	FieldCount  int
	Fields      []FormField

	// Sensitive fields
	Count int
}

// Parse decodes a raw JSON event map from the channel into an Event.
// Missing fields default to zero values; the caller decides whether the
// kind is handled.
func Parse(raw map[string]interface{}) Event {
	ev := Event{}

	if v, ok := raw["event_id"].(string); ok {
		ev.EventID = v
	}
	if v, ok := raw["type"].(string); ok {
		ev.Type = Type(v)
	}
	if v, ok := raw["url"].(string); ok {
		ev.URL = v
	}
	if v, ok := raw["domain"].(string); ok {
		ev.Domain = v
	}
	if v, ok := raw["timestamp"].(float64); ok {
		ev.Timestamp = int64(v)
	}
	if v, ok := raw["tab_id"].(float64); ok {
		ev.TabID = int64(v)
	}
	if v, ok := raw["status"].(string); ok {
		ev.Status = v
	}
	if v, ok := raw["browser"].(string); ok {
		ev.Browser = v
	}
	if v, ok := raw["os"].(string); ok {
		ev.OS = v
	}

	// mediaType arrives either as a list (started) or a single string (ended)
	switch mt := raw["media_type"].(type) {
	case []interface{}:
		for _, item := range mt {
			if s, ok := item.(string); ok {
				ev.MediaTypes = append(ev.MediaTypes, s)
			}
		}
	case string:
		ev.MediaTypes = []string{mt}
	}

	if v, ok := raw["duration"].(float64); ok {
		ev.DurationMs = int64(v)
	}
	if v, ok := raw["error"].(string); ok {
		ev.Error = v
	}
	if v, ok := raw["field_type"].(string); ok {
		ev.FieldType = v
	}
	if v, ok := raw["field_name"].(string); ok {
		ev.FieldName = v
	}
	if v, ok := raw["placeholder"].(string); ok {
		ev.Placeholder = v
	}
	if v, ok := raw["autofilled_field_count"].(float64); ok {
		ev.FieldCount = int(v)
	}
	if fields, ok := raw["fields"].([]interface{}); ok {
		for _, item := range fields {
			field, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			var f FormField
			if v, ok := field["type"].(string); ok {
				f.Type = v
			}
			if v, ok := field["name"].(string); ok {
				f.Name = v
			}
			ev.Fields = append(ev.Fields, f)
		}
	}
	if v, ok := raw["count"].(float64); ok {
		ev.Count = int(v)
	}

	return ev
}
