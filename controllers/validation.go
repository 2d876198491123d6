package controllers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/opsdash/commesse-api/models"
)

var registerOnce sync.Once

// RegisterValidations adds the priority and ordertype tags to gin's validator.
// Phase statuses depend on the phase type and are checked by the store.
func RegisterValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			return models.Priority(fl.Field().String()).IsValid()
		})
		v.RegisterValidation("ordertype", func(fl validator.FieldLevel) bool {
			return models.OrderType(fl.Field().String()).IsValid()
		})
	})
}
