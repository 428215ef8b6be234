package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields by their query parameter name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(queryName)
	return v
}

func queryName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("query"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// ReadAndValidateRequest binds query parameters into req, fills `default`
// tags and checks `validate` bounds. It returns nil or a []ValidationError.
func ReadAndValidateRequest(c echo.Context, req any) any {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
		}
		return []ValidationError{{Code: "ERR_BIND", Message: err.Error()}}
	}
	if err := defaults.Set(req); err != nil {
		return []ValidationError{{Code: "ERR_DEFAULT", Message: err.Error()}}
	}
	err := validate.StructCtx(c.Request().Context(), req)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return []ValidationError{{Code: "ERR_INVALID", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(fes))
	for _, fe := range fes {
		out = append(out, rangeError(req, fe))
	}
	return out
}

// rangeError words a min/max failure using both bounds declared on the field.
func rangeError(req any, fe validator.FieldError) ValidationError {
	lo, hi := bounds(req, fe.StructField())
	ve := ValidationError{Code: "ERR_RANGE", Field: fe.Field(), Params: map[string]any{}}
	if lo != "" {
		ve.Params["min"] = lo
	}
	if hi != "" {
		ve.Params["max"] = hi
	}
	switch {
	case lo != "" && hi != "":
		ve.Message = fmt.Sprintf("%s must be between %s and %s", fe.Field(), lo, hi)
	case lo != "":
		ve.Message = fmt.Sprintf("%s must be at least %s", fe.Field(), lo)
	case hi != "":
		ve.Message = fmt.Sprintf("%s must be at most %s", fe.Field(), hi)
	default:
		ve.Code = "ERR_INVALID"
		ve.Message = fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
	return ve
}

func bounds(req any, field string) (lo, hi string) {
	t := reflect.TypeOf(req)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", ""
	}
	f, ok := t.FieldByName(field)
	if !ok {
		return "", ""
	}
	for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
		k, v, _ := strings.Cut(rule, "=")
		switch k {
		case "min", "gte":
			lo = v
		case "max", "lte":
			hi = v
		}
	}
	return lo, hi
}
