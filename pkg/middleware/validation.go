package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/agrimesh-platform/edge-gateway/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// InitValidator initializes the validator with custom validators
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerCustomValidators(validate)

		// Set as Gin's default validator
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustomValidators(v)
		}
	})

	return validate
}

func registerCustomValidators(v *validator.Validate) {
	_ = v.RegisterValidation("field_id", validateFieldID)
	_ = v.RegisterValidation("farm_id", validateFarmID)
	_ = v.RegisterValidation("device_id", validateDeviceID)
	_ = v.RegisterValidation("caller_key", validateCallerKey)
	_ = v.RegisterValidation("safe_string", validateSafeString)

	// Use JSON tag names for error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// GetValidator returns the singleton validator instance
func GetValidator() *validator.Validate {
	if validate == nil {
		return InitValidator()
	}
	return validate
}

// Custom validators

var (
	fieldIDRegex    = regexp.MustCompile(`^FLD-[A-Za-z0-9-]+$`)
	farmIDRegex     = regexp.MustCompile(`^FARM-[A-Za-z0-9-]+$`)
	deviceIDRegex   = regexp.MustCompile(`^DEV-[A-Za-z0-9-]+$`)
	callerKeyRegex  = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
	safeStringRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.,!?@#$%&*()+=:;'"<>\/\[\]{}|\\~\x60]+$`)
)

func validateFieldID(fl validator.FieldLevel) bool {
	return fieldIDRegex.MatchString(fl.Field().String())
}

func validateFarmID(fl validator.FieldLevel) bool {
	return farmIDRegex.MatchString(fl.Field().String())
}

func validateDeviceID(fl validator.FieldLevel) bool {
	return deviceIDRegex.MatchString(fl.Field().String())
}

// validateCallerKey accepts an API key or a client IP, the two forms the
// caller-key middleware derives.
func validateCallerKey(fl validator.FieldLevel) bool {
	return callerKeyRegex.MatchString(fl.Field().String())
}

func validateSafeString(fl validator.FieldLevel) bool {
	return safeStringRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter formats validation errors into a map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			fields[field] = formatValidationError(e)
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
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "field_id":
		return "must be a valid field ID (format: FLD-xxxx)"
	case "farm_id":
		return "must be a valid farm ID (format: FARM-xxxx)"
	case "device_id":
		return "must be a valid device ID (format: DEV-xxxx)"
	case "caller_key":
		return "must be a valid caller key"
	case "safe_string":
		return "contains invalid characters"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// BindAndValidate binds request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			fields := ValidationErrorFormatter(validationErrors)
			return errors.ErrValidationWithFields("validation failed", fields)
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// ValidateStruct validates a struct using the validator
func ValidateStruct(obj interface{}) *errors.AppError {
	v := GetValidator()
	if err := v.Struct(obj); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			fields := ValidationErrorFormatter(validationErrors)
			return errors.ErrValidationWithFields("validation failed", fields)
		}
		return errors.ErrBadRequest("validation failed: " + err.Error())
	}
	return nil
}

// ValidatePathParam validates a single path parameter against a named rule
// and returns a field-scoped validation error on failure
func ValidatePathParam(c *gin.Context, param, rule string) *errors.AppError {
	value := c.Param(param)
	v := GetValidator()
	if err := v.Var(value, rule); err != nil {
		return errors.ErrValidationWithFields("validation failed", map[string]string{
			param: formatParamError(param, rule),
		})
	}
	return nil
}

func formatParamError(param, rule string) string {
	switch rule {
	case "field_id":
		return "must be a valid field ID (format: FLD-xxxx)"
	case "farm_id":
		return "must be a valid farm ID (format: FARM-xxxx)"
	case "device_id":
		return "must be a valid device ID (format: DEV-xxxx)"
	default:
		return "is invalid"
	}
}

// SanitizeString removes potentially dangerous characters from a string
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Trim whitespace
	s = strings.TrimSpace(s)

	return s
}

// InputSanitizer middleware sanitizes string inputs
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Sanitize query parameters
		query := c.Request.URL.Query()
		for key, values := range query {
			for i, v := range values {
				values[i] = SanitizeString(v)
			}
			query[key] = values
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// ContentType middleware ensures proper content type for POST/PUT/PATCH
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "POST" || c.Request.Method == "PUT" || c.Request.Method == "PATCH" {
			contentType := c.GetHeader("Content-Type")
			if contentType == "" || !strings.HasPrefix(contentType, "application/json") {
				// Allow empty body for some endpoints
				if c.Request.ContentLength > 0 {
					AbortWithAppError(c, &errors.AppError{
						Code:       "INVALID_CONTENT_TYPE",
						Message:    "Content-Type must be application/json",
						HTTPStatus: 415,
					})
					return
				}
			}
		}
		c.Next()
	}
}
