package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var fieldMessages = map[string]string{
	"required": "The field '%s' is required.",
	"max":      "The field '%s' must be no longer than %s characters.",
	"oneof":    "The field '%s' must be one of: %s.",
	"gte":      "The field '%s' must be greater than or equal to %s.",
}

// Validator plugs go-playground/validator into echo and reports fields by their json name.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	fe := verrs[0]
	msg, ok := fieldMessages[fe.Tag()]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Field '%s' is invalid: %s", fe.Field(), fe.Tag()))
	}
	if strings.Count(msg, "%s") == 2 {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(msg, fe.Field(), fe.Param()))
	}
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(msg, fe.Field()))
}

// bindValid binds the body into dst and validates it.
func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return c.Validate(dst)
}
