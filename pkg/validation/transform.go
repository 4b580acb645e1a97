package validation

import (
	"fmt"
	"reflect"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

// Transform rewrites values before they are sent to the record store.
type Transform interface {
	Apply(ctx model.Context, values model.Values) (model.Values, error)
}

// TransformFunc adapts a function into a Transform.
type TransformFunc func(ctx model.Context, values model.Values) (model.Values, error)

// Apply calls the wrapped function.
func (fn TransformFunc) Apply(ctx model.Context, values model.Values) (model.Values, error) {
	return fn(ctx, values)
}

// Shape wraps the value of every multi-valued field into a sequence. Scalars,
// including already valid ones, become single-element sequences and nil
// becomes an empty sequence. The input map is not modified.
func Shape(values model.Values, pages model.Pages) model.Values {
	out := values.Clone()
	for _, field := range pages.Fields() {
		if !field.IsMulti() {
			continue
		}
		value, ok := out[field.Name]
		if !ok {
			continue
		}
		out[field.Name] = asSequence(value)
	}
	return out
}

func asSequence(value any) []any {
	if value == nil {
		return []any{}
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{value}
}

// Prepare shapes values for pages and then runs transforms in order.
func Prepare(ctx model.Context, values model.Values, pages model.Pages, transforms ...Transform) (model.Values, error) {
	out := Shape(values, pages)
	for i, transform := range transforms {
		if transform == nil {
			continue
		}
		next, err := transform.Apply(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("validation: transform %d: %w", i, err)
		}
		if next != nil {
			out = next
		}
	}
	return out, nil
}

// SetValue returns a transform that stores value under key.
func SetValue(key string, value any) Transform {
	return TransformFunc(func(_ model.Context, values model.Values) (model.Values, error) {
		values[key] = value
		return values, nil
	})
}

// Drop returns a transform that removes keys.
func Drop(keys ...string) Transform {
	return TransformFunc(func(_ model.Context, values model.Values) (model.Values, error) {
		for _, key := range keys {
			delete(values, key)
		}
		return values, nil
	})
}
