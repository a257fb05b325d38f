package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// Path binds fields tagged `path:"name"` using extractor, typically
// chi.URLParam. Untagged fields are skipped.
//
//	type getTierRequest struct {
//		ID uuid.UUID `path:"id"`
//	}
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrInvalidPath)
		}
		return bindTagged(v, "path", ErrInvalidPath, func(name string) []string {
			if value := extractor(r, name); value != "" {
				return []string{value}
			}
			return nil
		})
	}
}

// Query binds fields tagged `query:"name"`. Repeated or comma-separated
// values fill slices.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		return bindTagged(v, "query", ErrInvalidQuery, func(name string) []string {
			return values[name]
		})
	}
}

func bindTagged(v any, tagName string, bindErr error, lookup func(name string) []string) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: target must be a non-nil pointer", bindErr)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a pointer to struct", bindErr)
	}

	rt := rv.Type()
	for i := range rv.NumField() {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		name, ok := fieldParam(fieldType, tagName)
		if !ok {
			continue
		}
		values := lookup(name)
		if len(values) == 0 {
			continue
		}
		if err := setFieldValue(field, fieldType.Type, values); err != nil {
			return fmt.Errorf("%w: %s: %v", bindErr, name, err)
		}
	}
	return nil
}
