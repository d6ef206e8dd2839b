package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Accessors over JSON-like payloads (map[string]any as produced by encoding/json).

func firstValue(p map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func stringField(p map[string]any, keys ...string) string {
	v, ok := firstValue(p, keys...)
	if !ok {
		return ""
	}
	return asString(v)
}

func decimalField(p map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			if d, ok := asDecimal(v); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func intField(p map[string]any, keys ...string) (int, bool) {
	d, ok := decimalField(p, keys...)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

func sliceField(p map[string]any, keys ...string) []map[string]any {
	v, ok := firstValue(p, keys...)
	if !ok {
		return nil
	}
	switch items := v.(type) {
	case []map[string]any:
		return items
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	}
	return ""
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case float32:
		return asDecimal(float64(t))
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

func decimalPtr(d decimal.Decimal, ok bool) *decimal.Decimal {
	if !ok {
		return nil
	}
	return &d
}
