package remittance

import (
	"testing"

	"github.com/erp/remittance/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_MatchedPayment(t *testing.T) {
	payment := testPayment("1000.00", "1050.00", "50.00")
	rows := []AllocationRow{
		row("INV-003", "Clinic", "Lab", "200.00", "210.00", "10.00"),
		row("INV-001", "Hospital", "Radiology", "500.00", "525.00", "25.00"),
		row("INV-002", "Hospital", "Lab", "300.00", "315.00", "15.00"),
	}

	result := Reconcile(payment, rows, d("0.01"))

	assert.Equal(t, StatusMatched, result.Status)
	assertDecimal(t, "1000.00", result.ARBalance)
	assertDecimal(t, "0.00", result.TotalDifference)
	assertDecimal(t, "1000.00", result.PaymentAmount)
	assertDecimal(t, "0.01", result.Threshold)
	assert.True(t, result.ProcessingMetrics.AllMatched)
	assert.Nil(t, result.DiscrepancySummary)
	assert.Nil(t, result.InvoiceDiscrepancies)
}

func TestReconcile_PaymentLevelSlippage(t *testing.T) {
	payment := testPayment("995.00", "1050.00", "50.00")
	rows := []AllocationRow{
		row("INV-003", "Clinic", "Lab", "200.00", "210.00", "10.00"),
		row("INV-001", "Hospital", "Radiology", "500.00", "525.00", "25.00"),
		row("INV-002", "Hospital", "Lab", "300.00", "315.00", "15.00"),
	}

	result := Reconcile(payment, rows, d("0.01"))

	assert.Equal(t, StatusDiscrepancyFound, result.Status)
	assertDecimal(t, "1000.00", result.ARBalance)
	assertDecimal(t, "-5.00", result.TotalDifference)
	assert.False(t, result.ProcessingMetrics.AllMatched)

	// every invoice matched individually
	require.NotNil(t, result.InvoiceDiscrepancies)
	assert.Empty(t, result.InvoiceDiscrepancies)

	require.NotNil(t, result.DiscrepancySummary)
	summary := result.DiscrepancySummary
	assertDecimal(t, "-5.00", summary.TotalDifference)
	assert.Equal(t, 0, summary.AffectedInvoiceCount)
	assert.Equal(t, 0, summary.AffectedFacilityCount)
	assertDecimal(t, "995.00", summary.TotalRemittanceAmount)
	assertDecimal(t, "1000.00", summary.TotalARAmount)
	assert.Len(t, summary.FacilityDifferences, 2)
	assert.Empty(t, summary.AffectedServiceTypes)
}

func TestReconcile_InvoiceNettedAgainstDiscounts(t *testing.T) {
	payment := testPayment("200.00", "210.00", "10.00")
	rows := []AllocationRow{
		row("INV-003", "Clinic", "Lab", "200.00", "210.00", "10.00"),
	}

	result := Reconcile(payment, rows, d("0.01"))

	assert.Equal(t, StatusMatched, result.Status)
	assert.Nil(t, result.InvoiceDiscrepancies)
}

func TestReconcile_InvoiceLevelDiscrepancy(t *testing.T) {
	// payment total balances, but two invoices are swapped
	payment := testPayment("1000.00", "1050.00", "50.00")
	rows := []AllocationRow{
		row("INV-003", "Clinic", "Lab", "200.00", "210.00", "10.00"),
		row("INV-001", "Hospital", "Radiology", "480.00", "525.00", "25.00"),
		row("INV-002", "Hospital", "Lab", "320.00", "315.00", "15.00"),
	}

	result := Reconcile(payment, rows, d("0.01"))

	assert.Equal(t, StatusDiscrepancyFound, result.Status)
	assertDecimal(t, "0.00", result.TotalDifference)
	assert.False(t, result.ProcessingMetrics.AllMatched)

	require.Len(t, result.InvoiceDiscrepancies, 2)
	first := result.InvoiceDiscrepancies[0]
	assert.Equal(t, "INV-001", first.InvoiceNumber)
	assert.Equal(t, "FAC-Hospital", first.FacilityID)
	assert.Equal(t, "Radiology", first.ServiceType)
	assertDecimal(t, "480.00", first.RemittanceAmount)
	assertDecimal(t, "500.00", first.ARAmount)
	assertDecimal(t, "-20.00", first.Difference)
	assert.Equal(t, "INV-002", result.InvoiceDiscrepancies[1].InvoiceNumber)
	assertDecimal(t, "20.00", result.InvoiceDiscrepancies[1].Difference)

	summary := result.DiscrepancySummary
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.AffectedInvoiceCount)
	// the swap nets out at facility level
	assert.Equal(t, 0, summary.AffectedFacilityCount)
	assert.Equal(t, []string{"Lab", "Radiology"}, summary.AffectedServiceTypes)
}

func TestReconcile_ThresholdBoundary(t *testing.T) {
	threshold := d("0.01")

	t.Run("difference equal to threshold is tolerated", func(t *testing.T) {
		payment := testPayment("100.01", "100.00", "0")
		rows := []AllocationRow{row("INV-1", "Clinic", "Lab", "100.01", "100.00", "0")}

		result := Reconcile(payment, rows, threshold)
		assert.Equal(t, StatusMatched, result.Status)
		assertDecimal(t, "0.01", result.TotalDifference)
		assert.False(t, result.DiscrepancySummary != nil)
	})

	t.Run("one cent over threshold is flagged", func(t *testing.T) {
		payment := testPayment("100.02", "100.00", "0")
		rows := []AllocationRow{row("INV-1", "Clinic", "Lab", "100.02", "100.00", "0")}

		result := Reconcile(payment, rows, threshold)
		assert.Equal(t, StatusDiscrepancyFound, result.Status)
		require.Len(t, result.InvoiceDiscrepancies, 1)
		assertDecimal(t, "0.02", result.InvoiceDiscrepancies[0].Difference)
		assert.Equal(t, 1, result.DiscrepancySummary.AffectedFacilityCount)
	})

	t.Run("zero threshold flags any difference", func(t *testing.T) {
		payment := testPayment("100.01", "100.00", "0")
		result := Reconcile(payment, nil, decimal.Zero)
		assert.Equal(t, StatusDiscrepancyFound, result.Status)
	})
}

func TestReconcile_NoRows(t *testing.T) {
	payment := testPayment("0", "0", "0")

	result := Reconcile(payment, nil, d("0.01"))

	assert.Equal(t, StatusMatched, result.Status)
	assert.Equal(t, 0, result.ProcessingMetrics.TotalInvoices)
	assert.Empty(t, result.ProcessingMetrics.FacilityTypes)
	assert.Empty(t, result.ProcessingMetrics.ServiceTypes)
	assert.True(t, result.ProcessingMetrics.AllMatched)
}

func TestReconcile_EmptyServiceTypeExcludedFromMetrics(t *testing.T) {
	payment := testPayment("300.00", "300.00", "0")
	rows := []AllocationRow{
		row("INV-1", "Clinic", "", "100.00", "100.00", "0"),
		row("INV-2", "Clinic", "Lab", "100.00", "100.00", "0"),
		row("INV-3", "Hospital", "Lab", "100.00", "100.00", "0"),
	}

	result := Reconcile(payment, rows, d("0.01"))

	metrics := result.ProcessingMetrics
	assert.Equal(t, 3, metrics.TotalInvoices)
	assert.Equal(t, []string{"Clinic", "Hospital"}, metrics.FacilityTypes)
	assert.Equal(t, 2, metrics.FacilityTypeCount)
	assert.Equal(t, []string{"Lab"}, metrics.ServiceTypes)
	assert.Equal(t, 1, metrics.ServiceTypeCount)
}

func TestReconcile_RemittanceFieldsEchoed(t *testing.T) {
	payment := testPayment("10", "10", "0")
	payment.TotalCharges = d("2.50")

	fields := Reconcile(payment, nil, d("0.01")).RemittanceFields

	assert.Equal(t, "Acme Health", fields.CustomerName)
	assert.Equal(t, "CUST-1", fields.CustomerID)
	assert.Equal(t, paymentDate, fields.PaymentDate)
	assert.Equal(t, "ACH", fields.PaymentMethod)
	assert.Equal(t, "REF-1", fields.PaymentReference)
	assert.Equal(t, "****1234", fields.BankAccount)
	assertDecimal(t, "2.50", fields.TotalCharges)
	assertDecimal(t, "10", fields.TotalPayment)
}

func TestSummarizeFacilities(t *testing.T) {
	rows := []AllocationRow{
		row("INV-1", "Clinic", "Lab", "100.00", "100.00", "0"),
		row("INV-2", "Clinic", "Imaging", "50.00", "60.00", "5.00"),
		row("INV-3", "Hospital", "Lab", "300.00", "330.00", "10.00"),
		row("INV-4", "Pharmacy", "Rx", "40.00", "40.00", "0"),
	}

	summaries := SummarizeFacilities(rows, d("0.01"))
	require.Len(t, summaries, 3)

	assert.Equal(t, "Hospital", summaries[0].FacilityType)
	assertDecimal(t, "-20.00", summaries[0].Difference)
	assert.True(t, summaries[0].HasDiscrepancy)

	assert.Equal(t, "Clinic", summaries[1].FacilityType)
	assertDecimal(t, "150.00", summaries[1].RemittanceAmount)
	assertDecimal(t, "155.00", summaries[1].ARSystemAmount)
	assertDecimal(t, "-5.00", summaries[1].Difference)
	assert.Equal(t, []string{"Imaging", "Lab"}, summaries[1].ServiceTypes)
	assert.Equal(t, 2, summaries[1].InvoiceCount)

	assert.Equal(t, "Pharmacy", summaries[2].FacilityType)
	assert.False(t, summaries[2].HasDiscrepancy)
}

func TestSummarizeFacilities_TiesKeepRowOrder(t *testing.T) {
	rows := []AllocationRow{
		row("INV-1", "Alpha", "Lab", "10.00", "15.00", "0"),
		row("INV-2", "Beta", "Lab", "20.00", "15.00", "0"),
		row("INV-3", "Gamma", "Lab", "15.00", "15.00", "0"),
		row("INV-4", "Delta", "Lab", "25.00", "20.00", "0"),
	}

	summaries := SummarizeFacilities(rows, d("0.01"))
	require.Len(t, summaries, 4)

	var order []string
	for _, s := range summaries {
		order = append(order, s.FacilityType)
	}
	assert.Equal(t, []string{"Alpha", "Beta", "Delta", "Gamma"}, order)

	for i := 1; i < len(summaries); i++ {
		assert.False(t, summaries[i].Difference.Abs().GreaterThan(summaries[i-1].Difference.Abs()),
			"summaries must be non-increasing in |difference|")
	}
}

func TestSummarizeFacilities_SumsBeforeRounding(t *testing.T) {
	rows := []AllocationRow{
		row("INV-1", "Clinic", "Lab", "0.004", "0.004", "0"),
		row("INV-2", "Clinic", "Lab", "0.004", "0.004", "0"),
		row("INV-3", "Clinic", "Lab", "0.004", "0.004", "0"),
	}

	summaries := SummarizeFacilities(rows, d("0.01"))
	require.Len(t, summaries, 1)
	// 0.012 rounds to 0.01; rounding each row first would give 0.00
	assert.Equal(t, "0.01", summaries[0].RemittanceAmount.StringFixed(2))
	assert.Equal(t, "0.01", summaries[0].ARSystemAmount.StringFixed(2))
}

func TestReconcile_FacilityTotalsMatchPaymentTotal(t *testing.T) {
	rows := []AllocationRow{
		row("INV-1", "Clinic", "Lab", "100.10", "110.10", "10.00"),
		row("INV-2", "Clinic", "Imaging", "49.95", "49.95", "0"),
		row("INV-3", "Hospital", "Lab", "333.33", "343.33", "10.00"),
		row("INV-4", "Hospital", "Surgery", "1200.00", "1250.00", "50.00"),
		row("INV-5", "Pharmacy", "Rx", "12.34", "12.34", "0"),
	}

	remitTotal := decimal.Zero
	arGross := decimal.Zero
	discounts := decimal.Zero
	for _, r := range rows {
		remitTotal = remitTotal.Add(r.AllocatedAmount)
		arGross = arGross.Add(r.ARAmount)
		discounts = discounts.Add(r.Discounts)
	}

	payment := &Payment{
		PaymentReference:  "REF-SUM",
		NetTotalPaid:      valueobject.RoundCents(remitTotal),
		GrossInvoiceTotal: arGross,
		TotalDiscounts:    discounts,
	}
	result := Reconcile(payment, rows, d("0.01"))
	assert.Equal(t, StatusMatched, result.Status)

	facilityRemit := decimal.Zero
	facilityAR := decimal.Zero
	for _, s := range SummarizeFacilities(rows, d("0.01")) {
		facilityRemit = facilityRemit.Add(s.RemittanceAmount)
		facilityAR = facilityAR.Add(s.ARSystemAmount)
	}
	assert.True(t, facilityRemit.Equal(result.PaymentAmount))
	assert.True(t, facilityAR.Equal(result.ARBalance))
}

func TestReconciliationStatus(t *testing.T) {
	assert.True(t, StatusMatched.IsValid())
	assert.True(t, StatusDiscrepancyFound.IsValid())
	assert.False(t, ReconciliationStatus("PENDING").IsValid())
	assert.Equal(t, "MATCHED", StatusMatched.String())
}

func TestReconciliationResult_Summary(t *testing.T) {
	rows := []AllocationRow{
		row("INV-003", "Clinic", "Lab", "200.00", "210.00", "10.00"),
		row("INV-001", "Hospital", "Radiology", "480.00", "525.00", "25.00"),
		row("INV-002", "Hospital", "Lab", "300.00", "315.00", "15.00"),
	}

	t.Run("matched", func(t *testing.T) {
		result := Reconcile(testPayment("200.00", "210.00", "10.00"), rows[:1], d("0.01"))
		assert.Equal(t,
			"REF-1 MATCHED: remitted $200.00 against AR $200.00 (difference $0.00) across 1 invoices",
			result.Summary())
	})

	t.Run("discrepancy lists flagged counts", func(t *testing.T) {
		result := Reconcile(testPayment("980.00", "1050.00", "50.00"), rows, d("0.01"))
		assert.Equal(t,
			"REF-1 DISCREPANCY_FOUND: remitted $980.00 against AR $1,000.00 (difference -$20.00) across 3 invoices, 1 invoices in 1 facility types flagged",
			result.Summary())
	})
}
