package types

import (
	"net/url"
	"strings"

	"github.com/spf13/cast"
)

// Params is a loosely typed name to value mapping as delivered by a
// transport: values may be plain strings or multi-valued string slices.
type Params map[string]any

func ParamsFromValues(values url.Values) Params {
	p := make(Params, len(values))
	for k, v := range values {
		p[k] = []string(v)
	}
	return p
}

func (p Params) Get(key string) (any, bool) {
	v, exists := p[key]
	return v, exists
}

// GetString returns the value for key. For multi-valued entries the
// first value is used, trimmed.
func (p Params) GetString(key string) (string, bool) {
	v, exists := p.Get(key)
	if !exists || v == nil {
		return "", false
	}
	switch tv := v.(type) {
	case string:
		return tv, true
	case []string:
		if len(tv) == 0 {
			return "", false
		}
		return strings.TrimSpace(tv[0]), true
	case []any:
		if len(tv) == 0 {
			return "", false
		}
		return strings.TrimSpace(cast.ToString(tv[0])), true
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return "", false
		}
		return s, true
	}
}

func (p Params) Set(key string, value any) {
	p[key] = value
}
