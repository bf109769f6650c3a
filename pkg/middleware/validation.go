package middleware

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/nursery-fulfillment/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var packingActions = map[string]bool{
	"start":    true,
	"complete": true,
	"verify":   true,
}

var runStatuses = map[string]bool{
	"planned":    true,
	"loading":    true,
	"in_transit": true,
	"completed":  true,
}

func registerCustom(v *validator.Validate) {
	_ = v.RegisterValidation("notblank", validateNotBlank)
	_ = v.RegisterValidation("packingaction", validatePackingAction)
	_ = v.RegisterValidation("runstatus", validateRunStatus)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// InitValidator registers the custom tags on a standalone validator and on
// Gin's binding validator
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerCustom(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustom(v)
		}
	})

	return validate
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validatePackingAction(fl validator.FieldLevel) bool {
	return packingActions[fl.Field().String()]
}

func validateRunStatus(fl validator.FieldLevel) bool {
	return runStatuses[fl.Field().String()]
}

// ValidationErrorFormatter formats validation errors into a field map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}

	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "notblank":
		return "must not be blank"
	case "packingaction":
		return "must be one of: start, complete, verify"
	case "runstatus":
		return "must be one of: planned, loading, in_transit, completed"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	InitValidator()
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(validationErrors))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}
