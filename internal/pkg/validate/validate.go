// Package validate wraps struct validation behind a shared validator
// instance.
package validate

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validate returns the shared validator.
func Validate() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
	})
	return instance
}
