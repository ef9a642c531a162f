package utils

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidateStruct runs go-playground/validator tags on a payload struct.
// Used for regenerate requests and inbound pubsub payloads.
func ValidateStruct(obj interface{}) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(obj)
}
