package shared

import "fmt"

// Error codes used across the remittance domain
const (
	CodeInvalidMonetaryValue = "INVALID_MONETARY_VALUE"
	CodePaymentNotFound      = "PAYMENT_NOT_FOUND"
	CodeInvoiceNotFound      = "INVOICE_NOT_FOUND"
	CodePersistence          = "PERSISTENCE_ERROR"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeReportsDisabled      = "REPORT_ARCHIVE_DISABLED"
)

// DomainError represents a domain-level error.
// Two DomainErrors match under errors.Is when their codes are equal, so callers
// can test against the sentinels below regardless of the message.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DomainError with the same code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common domain errors
var (
	ErrInvalidMonetaryValue = NewDomainError(CodeInvalidMonetaryValue, "Invalid monetary value")
	ErrPaymentNotFound      = NewDomainError(CodePaymentNotFound, "Payment not found")
	ErrInvoiceNotFound      = NewDomainError(CodeInvoiceNotFound, "Invoice not found")
	ErrPersistence          = NewDomainError(CodePersistence, "Ledger operation failed")
	ErrInvalidInput         = NewDomainError(CodeInvalidInput, "Invalid input provided")
)

// NewInvalidMonetaryValueError reports an amount that could not be parsed.
// field may be empty when the caller does not know which field was being read.
func NewInvalidMonetaryValueError(field string, raw any, cause error) *DomainError {
	msg := fmt.Sprintf("invalid monetary value %q", fmt.Sprint(raw))
	if field != "" {
		msg = fmt.Sprintf("invalid monetary value %q for field %s", fmt.Sprint(raw), field)
	}
	return WrapDomainError(CodeInvalidMonetaryValue, msg, cause)
}

// NewPaymentNotFoundError reports an unknown payment reference
func NewPaymentNotFoundError(reference string) *DomainError {
	return NewDomainError(CodePaymentNotFound, fmt.Sprintf("payment not found: %s", reference))
}

// NewInvoiceNotFoundError reports an invoice number that does not resolve for a customer
func NewInvoiceNotFoundError(customerID, invoiceNumber string) *DomainError {
	return NewDomainError(CodeInvoiceNotFound,
		fmt.Sprintf("invoice %s not found for customer %s", invoiceNumber, customerID))
}

// NewPersistenceError wraps an opaque ledger failure
func NewPersistenceError(operation string, cause error) *DomainError {
	return WrapDomainError(CodePersistence, fmt.Sprintf("ledger %s failed", operation), cause)
}
