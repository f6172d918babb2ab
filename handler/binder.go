package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Query returns a Bind that fills fields tagged `query:"name"` from URL
// query parameters. Missing parameters leave the field at its zero
// value; unparseable ones yield a 400 HTTPError.
func Query() Bind {
	return func(r *http.Request, v any) error {
		return bindTagged(v, "query", func(name string) string {
			return r.URL.Query().Get(name)
		})
	}
}

// Path returns a Bind that fills fields tagged `path:"name"` from chi
// route parameters.
func Path() Bind {
	return func(r *http.Request, v any) error {
		return bindTagged(v, "path", func(name string) string {
			return chi.URLParam(r, name)
		})
	}
}

// JSONBody returns a Bind that decodes the request body into v.
func JSONBody() Bind {
	return func(r *http.Request, v any) error {
		if r.Body == nil || r.ContentLength == 0 {
			return nil
		}
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return BadRequest("invalid JSON body")
		}
		return nil
	}
}

var uuidType = reflect.TypeOf(uuid.UUID{})

func bindTagged(v any, tag string, lookup func(name string) string) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("handler: bind target must be a struct pointer, got %T", v)
	}

	structVal := rv.Elem()
	structType := structVal.Type()
	for i := range structType.NumField() {
		name := structType.Field(i).Tag.Get(tag)
		if name == "" || name == "-" {
			continue
		}
		raw := lookup(name)
		if raw == "" {
			continue
		}
		if err := setField(structVal.Field(i), raw); err != nil {
			return BadRequest(fmt.Sprintf("invalid %s parameter %q", tag, name))
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == uuidType {
		id, err := uuid.Parse(raw)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(id))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported bind kind %s", field.Kind())
	}
	return nil
}
