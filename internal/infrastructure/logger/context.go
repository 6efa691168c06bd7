package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Field names shared by every entry that belongs to a remittance
const (
	FieldRequestID        = "request_id"
	FieldPaymentReference = "payment_reference"
	FieldCustomerID       = "customer_id"
	FieldPaymentID        = "payment_id"
	FieldLedgerOp         = "ledger_op"
	FieldTraceID          = "trace_id"
	FieldSpanID           = "span_id"
)

type scopeKey struct{}

// scope is the remittance a context is working on. It is copied on every
// change so parent contexts never observe a child's values.
type scope struct {
	requestID        string
	paymentReference string
	customerID       string
	paymentID        string
	ledgerOp         string
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, update func(*scope)) context.Context {
	s := scopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithRequestID tags ctx with the HTTP request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withScope(ctx, func(s *scope) { s.requestID = requestID })
}

// WithPaymentReference tags ctx with the remittance payment reference
func WithPaymentReference(ctx context.Context, reference string) context.Context {
	return withScope(ctx, func(s *scope) { s.paymentReference = reference })
}

// WithCustomerID tags ctx with the paying customer
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	return withScope(ctx, func(s *scope) { s.customerID = customerID })
}

// WithLedgerOp tags ctx with the ledger operation about to run. paymentID
// may be empty for lookups by reference.
func WithLedgerOp(ctx context.Context, op, paymentID string) context.Context {
	return withScope(ctx, func(s *scope) {
		s.ledgerOp = op
		if paymentID != "" {
			s.paymentID = paymentID
		}
	})
}

// RequestID returns the request id ctx was tagged with
func RequestID(ctx context.Context) string {
	return scopeFrom(ctx).requestID
}

// PaymentReference returns the payment reference ctx was tagged with
func PaymentReference(ctx context.Context) string {
	return scopeFrom(ctx).paymentReference
}

// Fields returns the scope of ctx as log fields, trace correlation included.
// Empty values are omitted.
func Fields(ctx context.Context) []zap.Field {
	s := scopeFrom(ctx)
	fields := make([]zap.Field, 0, 7)
	for _, kv := range [...]struct{ key, value string }{
		{FieldRequestID, s.requestID},
		{FieldPaymentReference, s.paymentReference},
		{FieldCustomerID, s.customerID},
		{FieldPaymentID, s.paymentID},
		{FieldLedgerOp, s.ledgerOp},
	} {
		if kv.value != "" {
			fields = append(fields, zap.String(kv.key, kv.value))
		}
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String(FieldTraceID, sc.TraceID().String()),
			zap.String(FieldSpanID, sc.SpanID().String()),
		)
	}
	return fields
}

// For returns base annotated with the scope of ctx.
// Usage: logger.For(ctx, s.logger).Info("Payment recorded")
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	fields := Fields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
