// Package cachekey implements the deterministic, reversible encoding used
// for every cached metric payload:
//
//	cache:{metricId}:{instanceId}:{scope}:{k1=v1,k2=v2}:{version}
//
// Filter keys are sorted lexicographically and values percent-encoded, so
// equal parameter sets always produce identical keys and Decode(Encode(p))
// returns p for every representable input.
package cachekey

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// Prefix is the fixed first segment of every key.
	Prefix = "cache"
	// DefaultVersion is used when the caller does not pin a version.
	DefaultVersion = "v1"

	segmentSep = ":"
	filterSep  = ","
	pairSep    = "="

	// prefix + metric + instance + scope + version
	minSegments = 5
	maxSegments = 6
)

// Params holds the components of a cache key. Filters values may be
// strings, float64 numbers or bools; anything else is stringified.
type Params struct {
	MetricID   string
	InstanceID string
	Scope      string
	Filters    map[string]interface{}
	Version    string
}

// Encode builds the canonical key for the given components. The filter
// segment is omitted entirely when no filters are set.
func Encode(p Params) string {
	version := p.Version
	if version == "" {
		version = DefaultVersion
	}

	segments := []string{Prefix, p.MetricID, p.InstanceID, p.Scope}
	if len(p.Filters) > 0 {
		segments = append(segments, encodeFilters(p.Filters))
	}
	segments = append(segments, version)
	return strings.Join(segments, segmentSep)
}

// EncodePattern builds a glob pattern for bulk invalidation. Unset fields
// become "*"; the trailing "*" covers both the optional filter segment and
// the version.
func EncodePattern(p Params) string {
	segments := []string{Prefix, orStar(p.MetricID), orStar(p.InstanceID), orStar(p.Scope), "*"}
	return strings.Join(segments, segmentSep)
}

// Decode parses a canonical key back into its components. It returns nil
// for keys that do not start with the fixed prefix, have too few or too
// many segments, or carry an unparseable filter segment.
func Decode(key string) *Params {
	parts := strings.Split(key, segmentSep)
	if len(parts) < minSegments || len(parts) > maxSegments || parts[0] != Prefix {
		return nil
	}

	p := &Params{
		MetricID:   parts[1],
		InstanceID: parts[2],
		Scope:      parts[3],
		Version:    parts[len(parts)-1],
	}

	if len(parts) == maxSegments {
		filters, ok := decodeFilters(parts[4])
		if !ok {
			return nil
		}
		p.Filters = filters
	}

	return p
}

func encodeFilters(filters map[string]interface{}) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+pairSep+url.QueryEscape(formatValue(filters[k])))
	}
	return strings.Join(pairs, filterSep)
}

func decodeFilters(segment string) (map[string]interface{}, bool) {
	if segment == "" {
		return nil, false
	}
	filters := make(map[string]interface{})
	for _, pair := range strings.Split(segment, filterSep) {
		kv := strings.SplitN(pair, pairSep, 2)
		if len(kv) != 2 {
			return nil, false
		}
		key, err := url.QueryUnescape(kv[0])
		if err != nil {
			return nil, false
		}
		value, err := url.QueryUnescape(kv[1])
		if err != nil {
			return nil, false
		}
		filters[key] = coerceValue(value)
	}
	return filters, true
}

// formatValue serialises filter values the same way coerceValue parses
// them, which is what makes the round-trip law hold.
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func coerceValue(raw string) interface{} {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func orStar(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
