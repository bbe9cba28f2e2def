package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/slok/btorch/internal/model"
)

// reader reads fields from raw payload objects recording the coercion warnings.
type reader struct {
	warnings []model.NormalizationWarning
}

func (r *reader) warn(path, reason string) {
	r.warnings = append(r.warnings, model.NormalizationWarning{Field: path, Reason: reason})
}

// lookup returns the first non-null value of f in objs. Objects are tried in
// order and, inside each object, the field keys in precedence order.
func lookup(f field, objs ...map[string]any) (any, bool) {
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		for _, k := range f.keys {
			if v, ok := obj[k]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

// number returns the numeric value of a field. Missing fields are 0, present
// fields that are not numeric are 0 with a warning.
func (r *reader) number(path string, f field, objs ...map[string]any) (v float64, present bool) {
	raw, ok := lookup(f, objs...)
	if !ok {
		return 0, false
	}

	n, err := toFloat(raw)
	if err != nil {
		r.warn(joinPath(path, f.name), err.Error())
		return 0, true
	}
	return n, true
}

func (r *reader) integer(path string, f field, objs ...map[string]any) int64 {
	n, _ := r.number(path, f, objs...)
	return int64(n)
}

// text returns the string representation of a field, numbers are formatted
// without exponent so numeric timestamps keep being readable.
func (r *reader) text(path string, f field, objs ...map[string]any) string {
	raw, ok := lookup(f, objs...)
	if !ok {
		return ""
	}

	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}

	r.warn(joinPath(path, f.name), fmt.Sprintf("expected text, got %s", typeName(raw)))
	return ""
}

func (r *reader) object(path string, f field, objs ...map[string]any) map[string]any {
	raw, ok := lookup(f, objs...)
	if !ok {
		return nil
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		r.warn(joinPath(path, f.name), fmt.Sprintf("expected object, got %s", typeName(raw)))
		return nil
	}
	return obj
}

func (r *reader) list(path string, f field, objs ...map[string]any) []any {
	raw, ok := lookup(f, objs...)
	if !ok {
		return nil
	}

	l, ok := raw.([]any)
	if !ok {
		r.warn(joinPath(path, f.name), fmt.Sprintf("expected list, got %s", typeName(raw)))
		return nil
	}
	return l
}

func toFloat(raw any) (float64, error) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case int32:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("non numeric value %q", v.String())
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("non numeric value %q", v)
		}
		n = f
	default:
		return 0, fmt.Errorf("non numeric value of type %s", typeName(raw))
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("non finite value")
	}
	return n, nil
}

func typeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case bool:
		return "bool"
	case string:
		return "string"
	}
	return fmt.Sprintf("%T", v)
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func indexPath(path string, f field, i int) string {
	return fmt.Sprintf("%s[%d]", joinPath(path, f.name), i)
}
