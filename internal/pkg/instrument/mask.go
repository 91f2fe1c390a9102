package instrument

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

const maskedValue = "***"

// Masker hides the values of sensitive keys in log attributes and decoded
// payloads. Keys match case-insensitively.
type Masker struct {
	keys map[string]struct{}
}

func NewMasker(fields []string) *Masker {
	keys := lo.Compact(lo.Map(fields, func(f string, _ int) string {
		return strings.ToLower(strings.TrimSpace(f))
	}))

	return &Masker{keys: lo.SliceToMap(keys, func(k string) (string, struct{}) {
		return k, struct{}{}
	})}
}

// Hides reports whether the value stored under key must be masked.
func (m *Masker) Hides(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.keys[strings.ToLower(key)]
	return ok
}

func (m *Masker) empty() bool {
	return m == nil || len(m.keys) == 0
}

// Data returns a copy of a decoded JSON value with sensitive keys masked.
func (m *Masker) Data(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if m.Hides(k) {
				out[k] = maskedValue
				continue
			}
			out[k] = m.Data(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = inner
		}
		return m.Data(out)
	case []any:
		return lo.Map(val, func(inner any, _ int) any { return m.Data(inner) })
	default:
		return v
	}
}

// JSON masks a JSON object or array payload. It reports false when payload
// is not JSON.
func (m *Masker) JSON(payload []byte) (string, bool) {
	if len(payload) == 0 || (payload[0] != '{' && payload[0] != '[') {
		return "", false
	}

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", false
	}

	out, err := json.Marshal(m.Data(v))
	if err != nil {
		return "", false
	}
	return string(out), true
}

// Attr masks attr, descending into groups, maps and embedded JSON.
func (m *Masker) Attr(attr slog.Attr) slog.Attr {
	if m.Hides(attr.Key) {
		return slog.String(attr.Key, maskedValue)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		attr.Value = slog.GroupValue(lo.Map(group, func(a slog.Attr, _ int) slog.Attr { return m.Attr(a) })...)
	case slog.KindString:
		if s, ok := m.JSON([]byte(attr.Value.String())); ok {
			attr.Value = slog.StringValue(s)
		}
	case slog.KindAny:
		switch val := attr.Value.Any().(type) {
		case map[string]any, map[string]string, []any:
			attr.Value = slog.AnyValue(m.Data(val))
		case []byte:
			if s, ok := m.JSON(val); ok {
				attr.Value = slog.StringValue(s)
			}
		}
	}

	return attr
}
