// Package validation provides struct validation using go-playground/validator
// v10 and converts failures into apperr field errors keyed by JSON name.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the process-wide validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("mediaurl", validateMediaURL)
	})
	return validate
}

// validateMediaURL accepts absolute http(s) URLs with a host.
func validateMediaURL(fl validator.FieldLevel) bool {
	return IsMediaURL(fl.Field().String())
}

// IsMediaURL reports whether s is a well-formed absolute http(s) URL.
func IsMediaURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateStruct validates s and returns an *apperr.Error of kind
// validation_error listing every failing field, or nil.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindValidation, err, "invalid input")
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return apperr.Validation(fields...)
}

// fieldPath drops the top-level struct name from the namespace so that
// "ListingPayload.media_urls[1]" becomes "media_urls[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "mediaurl":
		return "must be an absolute http(s) URL"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
