package services

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"sktutorials_go/services/fees"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs struct tags and reports the first failing field the
// same way the fee ledger does.
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &fees.ValidationError{Field: fe.Field(), Message: "failed \"" + fe.Tag() + "\" validation"}
	}
	return &fees.ValidationError{Message: err.Error()}
}

func parseDay(field, s string) (time.Time, error) {
	d, err := time.Parse(fees.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &fees.ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return d, nil
}

func storeErr(op string, err error) error {
	return &fees.StoreError{Op: op, Err: err}
}
