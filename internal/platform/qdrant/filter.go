package qdrant

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Retrieval filters are written in the Pinecone metadata-filter dialect; this file maps the
// subset the service emits onto Qdrant's must/should/must_not conditions.
const (
	filterOpAnd = "$and"
	filterOpOr  = "$or"
	filterOpIn  = "$in"
	filterOpEq  = "$eq"
	filterOpNe  = "$ne"
)

type translatedFilter struct {
	Must    []any
	Should  []any
	MustNot []any
}

func (f translatedFilter) asMap() map[string]any {
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = f.Must
	}
	if len(f.Should) > 0 {
		out["should"] = f.Should
	}
	if len(f.MustNot) > 0 {
		out["must_not"] = f.MustNot
	}
	return out
}

func (f *translatedFilter) merge(src translatedFilter) {
	f.Must = append(f.Must, src.Must...)
	f.Should = append(f.Should, src.Should...)
	f.MustNot = append(f.MustNot, src.MustNot...)
}

func mergeTranslatedFilters(dst *translatedFilter, src translatedFilter) {
	if dst != nil {
		dst.merge(src)
	}
}

func translateFilterMap(filter map[string]any) (translatedFilter, error) {
	var out translatedFilter
	for _, key := range sortedKeys(filter) {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		value := filter[key]
		if !strings.HasPrefix(k, "$") {
			part, err := translateFieldFilter(k, value)
			if err != nil {
				return translatedFilter{}, err
			}
			out.merge(part)
			continue
		}

		op := strings.ToLower(k)
		if op != filterOpAnd && op != filterOpOr {
			return translatedFilter{}, filterErr(OperationErrorUnsupportedFilter, "unsupported top-level filter operator %q", k)
		}
		items, ok := value.([]any)
		if !ok {
			return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s expects array of objects", op)
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s expects array of objects", op)
			}
			sub, err := translateFilterMap(obj)
			if err != nil {
				return translatedFilter{}, err
			}
			if op == filterOpAnd {
				out.Must = append(out.Must, sub.asMap())
			} else {
				out.Should = append(out.Should, sub.asMap())
			}
		}
	}
	return out, nil
}

func translateFieldFilter(field string, value any) (translatedFilter, error) {
	var out translatedFilter
	ops, isOps := value.(map[string]any)
	if !isOps {
		scalar, ok := toScalarValue(value)
		if !ok {
			return out, filterErr(OperationErrorValidation, "field %q expects scalar value or operator object", field)
		}
		out.Must = append(out.Must, qdrantMatchCondition(field, scalar))
		return out, nil
	}
	if len(ops) == 0 {
		return out, filterErr(OperationErrorValidation, "field %q has empty operator map", field)
	}

	for _, op := range sortedKeys(ops) {
		opVal := ops[op]
		switch strings.ToLower(strings.TrimSpace(op)) {
		case filterOpEq, filterOpNe:
			scalar, ok := toScalarValue(opVal)
			if !ok {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s for field %q expects scalar value", op, field)
			}
			if strings.EqualFold(op, filterOpEq) {
				out.Must = append(out.Must, qdrantMatchCondition(field, scalar))
			} else {
				out.MustNot = append(out.MustNot, qdrantMatchCondition(field, scalar))
			}
		case filterOpIn:
			values, err := toScalarSlice(opVal)
			if err != nil {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s for field %q expects scalar array", op, field)
			}
			if len(values) == 0 {
				return translatedFilter{}, filterErr(OperationErrorValidation, "operator %s for field %q cannot be empty", op, field)
			}
			out.Must = append(out.Must, map[string]any{
				"key":   field,
				"match": map[string]any{"any": values},
			})
		default:
			return translatedFilter{}, filterErr(OperationErrorUnsupportedFilter, "unsupported filter operator %q for field %q", op, field)
		}
	}
	return out, nil
}

func qdrantMatchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func filterErr(code OperationErrorCode, format string, args ...any) error {
	return opErr("filter_translate", code, fmt.Sprintf(format, args...), nil)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toScalarSlice(value any) ([]any, error) {
	switch typed := value.(type) {
	case []string:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			scalar, ok := toScalarValue(v)
			if !ok {
				return nil, fmt.Errorf("expected scalar, got %T", v)
			}
			out = append(out, scalar)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
}

func toScalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string, bool, int64, float64:
		return typed, true
	case int:
		return int64(typed), true
	case float32:
		return float64(typed), true
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, true
		}
		if f, err := typed.Float64(); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}
