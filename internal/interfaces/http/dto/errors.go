package dto

import (
	"net/http"

	"github.com/erp/remittance/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown            = "ERR_UNKNOWN"
	ErrCodeInternal           = "ERR_INTERNAL"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Remittance error codes
const (
	ErrCodeInvalidMonetaryValue = "ERR_INVALID_MONETARY_VALUE"
	ErrCodePaymentNotFound      = "ERR_PAYMENT_NOT_FOUND"
	ErrCodeInvoiceNotFound      = "ERR_INVOICE_NOT_FOUND"
	ErrCodePersistence          = "ERR_PERSISTENCE"
	ErrCodeReportsDisabled      = "ERR_REPORTS_DISABLED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:            http.StatusInternalServerError,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeInvalidMonetaryValue: http.StatusBadRequest,
	ErrCodePaymentNotFound:      http.StatusNotFound,
	ErrCodeInvoiceNotFound:      http.StatusNotFound,
	ErrCodePersistence:          http.StatusInternalServerError,
	ErrCodeReportsDisabled:      http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	shared.CodeInvalidMonetaryValue: ErrCodeInvalidMonetaryValue,
	shared.CodePaymentNotFound:      ErrCodePaymentNotFound,
	shared.CodeInvoiceNotFound:      ErrCodeInvoiceNotFound,
	shared.CodePersistence:          ErrCodePersistence,
	shared.CodeInvalidInput:         ErrCodeInvalidInput,
	shared.CodeReportsDisabled:      ErrCodeReportsDisabled,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
