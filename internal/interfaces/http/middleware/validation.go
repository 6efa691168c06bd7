package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/erp/remittance/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MonetaryTag validates that a field holds something valueobject.ParseAmount accepts
const MonetaryTag = "monetary"

// SetupValidator configures the validator with custom tags and makes the JSON
// binder keep numbers as json.Number so amounts are never routed through float64.
func SetupValidator() {
	binding.EnableDecoderUseNumber = true

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Use JSON tag names for field names in errors
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
		_ = v.RegisterValidation(MonetaryTag, validateMonetary)
	}
}

func validateMonetary(fl validator.FieldLevel) bool {
	field := fl.Field()
	if !field.IsValid() {
		return false
	}
	_, err := valueobject.ParseAmount(field.Interface())
	return err == nil
}

// FormatValidationErrors formats validation errors into a standard response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   fieldPath(e),
				Message: getValidationMessage(e),
			})
		}
	}

	return dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	)
}

// HandleValidationError writes the response for a failed ShouldBind call.
// Oversized bodies get 413 and undecodable bodies ERR_INVALID_JSON.
func HandleValidationError(c *gin.Context, err error) {
	requestID := GetRequestID(c)

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		c.JSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeRequestTooLarge,
			"Request body exceeds maximum allowed size",
			requestID,
		))
		return
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeInvalidJSON,
			"Request body could not be decoded",
			requestID,
		))
		return
	}

	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, requestID))
}

// fieldPath drops the root struct name from the namespace,
// e.g. "RecordPaymentRequest.payment.total_payment" -> "payment.total_payment".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case MonetaryTag:
		return "Must be a monetary amount"
	case "datetime":
		return "Must be a date in " + e.Param() + " format"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	default:
		return "Invalid value"
	}
}
