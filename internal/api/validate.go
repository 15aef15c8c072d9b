package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so errors match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct returns field errors keyed by json name, or nil.
func validateStruct(payload any) map[string]string {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	errs := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["body"] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			errs[field] = "is required"
		case "min":
			errs[field] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max":
			errs[field] = fmt.Sprintf("must be at most %s", fe.Param())
		case "oneof":
			errs[field] = fmt.Sprintf("must be one of: %s", fe.Param())
		case "uuid":
			errs[field] = "must be a uuid"
		default:
			errs[field] = "is invalid"
		}
	}
	return errs
}

// decodeAndValidate decodes a JSON body into dst and validates it. On
// failure it writes a 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if errs := validateStruct(dst); errs != nil {
		writeValidationError(w, errs)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, errs map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": "validation failed",
			"type":    "validation_error",
			"fields":  errs,
		},
	})
}
