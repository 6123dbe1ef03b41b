package altdata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"AltPull/internal/domain/errs"
	"AltPull/pkg/util"
)

// Canonical field names shared by the adapters.
const (
	FieldTimestamp              = "timestamp"
	FieldSentimentScore         = "sentiment_score"
	FieldNewsVolume             = "news_volume"
	FieldSource                 = "source"
	FieldHeadline               = "headline"
	FieldURL                    = "url"
	FieldOnChainActiveAddresses = "onchain_active_addresses"
	FieldOnChainTxVolume        = "onchain_tx_volume"
	FieldStablecoinRatio        = "stablecoin_ratio"
)

// FieldAliases maps one canonical field to the provider keys that may carry it, in priority order.
// Default is used when none of the aliases is present; it must be nil, a float64 or a string.
type FieldAliases struct {
	Canonical string
	Aliases   []string
	Default   interface{}
}

// AliasTable resolves provider-specific keys to canonical fields.
type AliasTable struct {
	provider string
	fields   map[string][]string
	defaults map[string]interface{}
	order    []string
}

// NewAliasTable validates the mapping: every canonical field needs at least one alias,
// and a provider key may not feed two canonical fields.
func NewAliasTable(provider string, fields ...FieldAliases) (*AliasTable, error) {
	t := &AliasTable{
		provider: provider,
		fields:   make(map[string][]string, len(fields)),
		defaults: make(map[string]interface{}, len(fields)),
	}
	owner := make(map[string]string)

	for _, f := range fields {
		if f.Canonical == "" {
			return nil, errs.New(errs.KindConfig, provider, "alias table has an empty canonical field")
		}
		if _, dup := t.fields[f.Canonical]; dup {
			return nil, errs.New(errs.KindConfig, provider, fmt.Sprintf("canonical field %q mapped twice", f.Canonical))
		}
		if len(f.Aliases) == 0 {
			return nil, errs.New(errs.KindConfig, provider, fmt.Sprintf("canonical field %q has no aliases", f.Canonical))
		}
		for _, alias := range f.Aliases {
			if prev, taken := owner[alias]; taken {
				return nil, errs.New(errs.KindConfig, provider,
					fmt.Sprintf("alias %q maps to both %q and %q", alias, prev, f.Canonical))
			}
			owner[alias] = f.Canonical
		}
		switch f.Default.(type) {
		case nil, float64, string:
		default:
			return nil, errs.New(errs.KindConfig, provider,
				fmt.Sprintf("canonical field %q has unsupported default %T", f.Canonical, f.Default))
		}
		t.fields[f.Canonical] = append([]string(nil), f.Aliases...)
		t.defaults[f.Canonical] = f.Default
		t.order = append(t.order, f.Canonical)
	}
	return t, nil
}

// Fields returns the canonical fields in declaration order.
func (t *AliasTable) Fields() []string {
	return append([]string(nil), t.order...)
}

// Lookup returns the first non-null value among the aliases of canonical.
func (t *AliasTable) Lookup(entry map[string]interface{}, canonical string) (interface{}, bool) {
	for _, alias := range t.fields[canonical] {
		if v, ok := entry[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Float resolves canonical to a number. Missing or unparsable values yield the field default, else 0.
func (t *AliasTable) Float(entry map[string]interface{}, canonical string) float64 {
	if v, ok := t.Lookup(entry, canonical); ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	if f, ok := t.defaults[canonical].(float64); ok {
		return f
	}
	return 0
}

// String resolves canonical to text. Objects with a "name" key (e.g. {"name": "Reuters"}) yield the name.
func (t *AliasTable) String(entry map[string]interface{}, canonical string) string {
	v, ok := t.Lookup(entry, canonical)
	if !ok {
		s, _ := t.defaults[canonical].(string)
		return s
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]interface{}:
		if name, ok := x["name"].(string); ok {
			return strings.TrimSpace(name)
		}
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Time resolves canonical to a UTC timestamp.
func (t *AliasTable) Time(entry map[string]interface{}, canonical string) (time.Time, bool) {
	v, ok := t.Lookup(entry, canonical)
	if !ok {
		return time.Time{}, false
	}
	switch x := v.(type) {
	case string:
		return util.ParseTime(x)
	case float64:
		return util.FromUnix(x)
	default:
		return time.Time{}, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// extractEntries pulls the record list out of a decoded payload: the first matching
// envelope key holding an array, or the payload itself when it is an array.
// Non-object elements are skipped.
func extractEntries(provider string, payload interface{}, envelopes ...string) ([]map[string]interface{}, error) {
	var raw []interface{}
	switch p := payload.(type) {
	case []interface{}:
		raw = p
	case map[string]interface{}:
		found := false
		for _, key := range envelopes {
			if arr, ok := p[key].([]interface{}); ok {
				raw, found = arr, true
				break
			}
		}
		if !found {
			return nil, errs.New(errs.KindProviderResponse, provider,
				fmt.Sprintf("response has no %s array", strings.Join(envelopes, "/")))
		}
	case nil:
		return nil, errs.New(errs.KindProviderResponse, provider, "empty response body")
	default:
		return nil, errs.New(errs.KindProviderResponse, provider, fmt.Sprintf("unexpected payload type %T", payload))
	}

	entries := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			entries = append(entries, m)
		}
	}
	return entries, nil
}
