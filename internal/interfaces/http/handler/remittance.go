package handler

import (
	"context"
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/erp/remittance/internal/infrastructure/logger"
	"github.com/erp/remittance/internal/interfaces/http/dto"
	"github.com/erp/remittance/internal/interfaces/http/middleware"
	"github.com/erp/remittance/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RemittanceService is the application surface the remittance endpoints drive
type RemittanceService interface {
	RecordPayment(ctx context.Context, payment remittance.PaymentInput, allocations []remittance.AllocationInput) (*remittance.RecordResult, error)
	AnalyzeReconciliation(ctx context.Context, reference string, threshold *decimal.Decimal) (*remittance.ReconciliationResult, error)
	ReportURL(ctx context.Context, reference string, threshold *decimal.Decimal, expiresIn time.Duration) (string, time.Time, error)
}

// RemittanceHandler handles payment recording and reconciliation endpoints
type RemittanceHandler struct {
	BaseHandler
	service RemittanceService
}

// NewRemittanceHandler creates a new RemittanceHandler
func NewRemittanceHandler(service RemittanceService) *RemittanceHandler {
	return &RemittanceHandler{service: service}
}

// Routes returns the remittance route group
func (h *RemittanceHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("remittance", "/remittance").
		POST("/payments", h.RecordPayment).
		GET("/payments/:reference/reconciliation", h.AnalyzeReconciliation).
		GET("/payments/:reference/report", h.ReportURL)
}

// RecordPayment writes a payment and its invoice allocations to the ledger
//
//	@Summary		Record a remittance payment
//	@Description	Upsert a payment and its invoice allocations. Re-recording a reference replaces its allocations and drops cached analyses and archived reports.
//	@Tags			remittance
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.RecordPaymentRequest	true	"Payment header and invoice lines"
//	@Success		201		{object}	dto.Response{data=dto.RecordPaymentResponse}
//	@Failure		400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		404		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		413		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		500		{object}	dto.Response{error=dto.ErrorInfo}
//	@Router			/remittance/payments [post]
func (h *RemittanceHandler) RecordPayment(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	payment, allocations, err := req.ToInputs()
	if err != nil {
		h.BadRequest(c, "payment_date must be formatted as "+remittance.PaymentDateLayout)
		return
	}

	result, err := h.service.RecordPayment(c.Request.Context(), payment, allocations)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.AnnotatePayment(c, result.PaymentID, len(result.Allocations), result.Totals.Payment)
	h.Created(c, dto.NewRecordPaymentResponse(result))
}

// AnalyzeReconciliation compares a recorded payment against its AR balance
//
//	@Summary		Reconcile a payment
//	@Description	Compare the payment recorded under a reference with the AR balance of its invoices
//	@Tags			remittance
//	@Produce		json
//	@Param			reference	path		string	true	"Payment reference"
//	@Param			threshold	query		string	false	"Tolerance, defaults to the configured threshold"	example(0.01)
//	@Success		200			{object}	dto.Response{data=dto.ReconciliationResponse}
//	@Failure		400			{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		404			{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		500			{object}	dto.Response{error=dto.ErrorInfo}
//	@Router			/remittance/payments/{reference}/reconciliation [get]
func (h *RemittanceHandler) AnalyzeReconciliation(c *gin.Context) {
	var query dto.ReconciliationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	threshold, err := parseThreshold(query.Threshold)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.AnalyzeReconciliation(c.Request.Context(), c.Param("reference"), threshold)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.AnnotateReconciliation(c, result.Status.String(), result.Threshold)
	h.Success(c, dto.NewReconciliationResponse(result))
}

// ReportURL returns a presigned link to the archived reconciliation report
//
//	@Summary		Get a reconciliation report link
//	@Description	Archive the analysis if needed and return a presigned download URL
//	@Tags			remittance
//	@Produce		json
//	@Param			reference	path		string	true	"Payment reference"
//	@Param			threshold	query		string	false	"Tolerance, defaults to the configured threshold"
//	@Param			expires_in	query		int		false	"Link lifetime in seconds"
//	@Success		200			{object}	dto.Response{data=dto.ReportURLResponse}
//	@Failure		400			{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		404			{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		503			{object}	dto.Response{error=dto.ErrorInfo}
//	@Router			/remittance/payments/{reference}/report [get]
func (h *RemittanceHandler) ReportURL(c *gin.Context) {
	var query dto.ReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	threshold, err := parseThreshold(query.Threshold)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	expiresIn := time.Duration(query.ExpiresIn) * time.Second
	url, expiresAt, err := h.service.ReportURL(c.Request.Context(), c.Param("reference"), threshold, expiresIn)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.ReportURLResponse{URL: url, ExpiresAt: expiresAt})
}

// parseThreshold returns nil for an absent threshold so the service default applies
func parseThreshold(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	threshold, err := valueobject.ParseField("threshold", raw)
	if err != nil {
		return nil, err
	}
	return &threshold, nil
}
