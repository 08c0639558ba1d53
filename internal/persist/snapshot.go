package persist

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/window"
)

// CurrentVersion is written into every encoded snapshot.
const CurrentVersion = 1

// Attribute keys of the persisted blob.
const (
	KeyVersion          = "version"
	KeyState            = "state"
	KeyLastUpdated      = "last_updated"
	KeyPriorValue       = "prior_value"
	KeyError            = "error"
	KeyByEvent          = "by_event"
	KeyWindowLastUpdate = "window_last_update"
	KeyWindowEntries    = "window_entries"
)

// Snapshot is the persisted view of one entity. It is produced at
// checkpoint time and consumed once when the entity is rebuilt.
type Snapshot struct {
	Version int

	// State is the entity's last value: a string, float64, bool or nil.
	State any

	// LastUpdated is the timestamp of the value. Zero means never.
	LastUpdated time.Time

	PriorValue *float64
	Error      string
	ByEvent    *bool

	// WindowLastUpdate and WindowEntries are only set for rolling window
	// entities.
	WindowLastUpdate time.Time
	WindowEntries    []window.Entry

	// Dropped lists the keys (or key[index]) that were present but could
	// not be decoded. Informational only.
	Dropped []string
}

// HasValue reports whether the snapshot carries any usable data.
func (s Snapshot) HasValue() bool {
	return !s.LastUpdated.IsZero() || s.State != nil || len(s.WindowEntries) > 0
}

// Encode converts the snapshot into a map of primitives. Optional fields
// are omitted when empty. Times are RFC 3339 in UTC.
func Encode(s Snapshot) map[string]any {
	out := map[string]any{
		KeyVersion: CurrentVersion,
		KeyState:   s.State,
	}
	if !s.LastUpdated.IsZero() {
		out[KeyLastUpdated] = formatTime(s.LastUpdated)
	}
	if s.PriorValue != nil {
		out[KeyPriorValue] = *s.PriorValue
	}
	if s.Error != "" {
		out[KeyError] = s.Error
	}
	if s.ByEvent != nil {
		out[KeyByEvent] = *s.ByEvent
	}
	if !s.WindowLastUpdate.IsZero() {
		out[KeyWindowLastUpdate] = formatTime(s.WindowLastUpdate)
	}
	if s.WindowEntries != nil {
		entries := make([]any, 0, len(s.WindowEntries))
		for _, e := range s.WindowEntries {
			entries = append(entries, []any{formatTime(e.At), e.Amount})
		}
		out[KeyWindowEntries] = entries
	}
	return out
}

// Decode rebuilds a snapshot from an attribute map. It never fails:
// unknown keys are ignored and malformed fields are dropped (and listed in
// Dropped) so the rest of the snapshot is still usable.
func Decode(attrs map[string]any) Snapshot {
	var s Snapshot

	if v, ok := attrs[KeyVersion]; ok {
		if f, ok := toFloat(v); ok {
			s.Version = int(f)
		} else {
			s.Dropped = append(s.Dropped, KeyVersion)
		}
	}

	if v, ok := attrs[KeyState]; ok {
		switch v.(type) {
		case nil, string, float64, bool:
			s.State = v
		case int, int64:
			s.State, _ = toFloat(v)
		default:
			s.Dropped = append(s.Dropped, KeyState)
		}
	}

	s.LastUpdated = s.decodeTime(attrs, KeyLastUpdated)
	s.WindowLastUpdate = s.decodeTime(attrs, KeyWindowLastUpdate)

	if v, ok := attrs[KeyPriorValue]; ok && v != nil {
		if f, ok := toFloat(v); ok {
			s.PriorValue = &f
		} else {
			s.Dropped = append(s.Dropped, KeyPriorValue)
		}
	}

	if v, ok := attrs[KeyError]; ok && v != nil {
		if str, ok := v.(string); ok {
			s.Error = str
		} else {
			s.Dropped = append(s.Dropped, KeyError)
		}
	}

	if v, ok := attrs[KeyByEvent]; ok && v != nil {
		if b, ok := v.(bool); ok {
			s.ByEvent = &b
		} else {
			s.Dropped = append(s.Dropped, KeyByEvent)
		}
	}

	if v, ok := attrs[KeyWindowEntries]; ok && v != nil {
		s.decodeEntries(v)
	}

	return s
}

func (s *Snapshot) decodeTime(attrs map[string]any, key string) time.Time {
	v, ok := attrs[key]
	if !ok || v == nil {
		return time.Time{}
	}
	t, ok := parseTime(v)
	if !ok {
		s.Dropped = append(s.Dropped, key)
		return time.Time{}
	}
	return t
}

func (s *Snapshot) decodeEntries(v any) {
	list, ok := v.([]any)
	if !ok {
		s.Dropped = append(s.Dropped, KeyWindowEntries)
		return
	}

	s.WindowEntries = make([]window.Entry, 0, len(list))
	for i, raw := range list {
		e, ok := decodeEntry(raw)
		if !ok {
			s.Dropped = append(s.Dropped, fmt.Sprintf("%s[%d]", KeyWindowEntries, i))
			continue
		}
		s.WindowEntries = append(s.WindowEntries, e)
	}
}

// decodeEntry accepts [timestamp, amount] pairs and {"at", "amount"} objects.
func decodeEntry(raw any) (window.Entry, bool) {
	var tsRaw, amountRaw any
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return window.Entry{}, false
		}
		tsRaw, amountRaw = v[0], v[1]
	case map[string]any:
		tsRaw, amountRaw = v["at"], v["amount"]
	default:
		return window.Entry{}, false
	}

	at, ok := parseTime(tsRaw)
	if !ok {
		return window.Entry{}, false
	}
	amount, ok := toFloat(amountRaw)
	if !ok {
		return window.Entry{}, false
	}
	return window.Entry{At: at, Amount: amount}, true
}

// Marshal encodes a snapshot as a JSON blob.
func Marshal(s Snapshot) ([]byte, error) {
	b, err := json.Marshal(Encode(s))
	if err != nil {
		return nil, fmt.Errorf("marshalling snapshot: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a JSON blob. Only a blob that is not a JSON object is
// an error; field-level problems are reported through Snapshot.Dropped.
func Unmarshal(b []byte) (Snapshot, error) {
	var attrs map[string]any
	if err := json.Unmarshal(b, &attrs); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if attrs == nil {
		return Snapshot{}, fmt.Errorf("%w: null", ErrMalformedBlob)
	}
	return Decode(attrs), nil
}

// naiveLayouts are accepted for timestamps written without a zone; they
// are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 strings, naive ISO strings and epoch seconds.
func parseTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case string:
		str := strings.TrimSpace(tv)
		if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
			return t.UTC(), true
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, str, time.UTC); err == nil {
				return t, true
			}
		}
		if f, err := strconv.ParseFloat(str, 64); err == nil && f > 0 {
			return epoch(f), true
		}
		return time.Time{}, false
	default:
		f, ok := toFloat(v)
		if !ok || f <= 0 {
			return time.Time{}, false
		}
		return epoch(f), true
	}
}

func epoch(sec float64) time.Time {
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second))).UTC()
}

func toFloat(v any) (float64, bool) {
	f, ok := rawFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
