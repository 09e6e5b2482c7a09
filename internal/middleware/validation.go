package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var notificationMethods = map[string]bool{
	"email":  true,
	"sms":    true,
	"in_app": true,
	"all":    true,
}

// RegisterValidators installs custom binding validators on gin's validator
// engine. Must run before any request is bound.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	if err := v.RegisterValidation("notifymethod", func(fl validator.FieldLevel) bool {
		return notificationMethods[fl.Field().String()]
	}); err != nil {
		panic(err)
	}

	// report field names as their JSON tags in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}
