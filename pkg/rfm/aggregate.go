package rfm

import (
	"fmt"
	"math"
	"sort"
	"time"

	"cltv-predict/pkg/models"

	"github.com/shopspring/decimal"
)

// Raisons d'exclusion après agrégation.
const (
	ReasonSinglePurchase = "frequency <= 1"
	ReasonNonPositiveAvg = "monetary_avg <= 0"
)

const day = 24 * time.Hour

// Options de l'agrégation RFM.
type Options struct {
	ReferenceDate time.Time // zéro → date de facture max observée
	TimeUnitDays  float64   // 7 → semaines
}

type accumulator struct {
	first, last time.Time
	invoices    map[string]struct{}
	total       decimal.Decimal
}

// MaxInvoiceDate renvoie la date de facture la plus récente (zéro si txs est vide).
func MaxInvoiceDate(txs []models.TransactionRecord) time.Time {
	var latest time.Time
	for _, t := range txs {
		if t.InvoiceDate.After(latest) {
			latest = t.InvoiceDate
		}
	}
	return latest
}

// wholeDays tronque une durée en jours entiers.
func wholeDays(d time.Duration) float64 {
	return math.Floor(float64(d) / float64(day))
}

// Aggregate réduit les transactions filtrées en une ligne RFM par client.
// Les clients sans signal de réachat (frequency <= 1) ou à panier moyen <= 0 sont renvoyés
// à part dans les exclusions. Sortie triée par CustomerID.
func Aggregate(txs []models.TransactionRecord, opts Options) ([]models.CustomerRFM, []models.Exclusion, error) {
	if len(txs) == 0 {
		return nil, nil, &models.DataError{Stage: models.StageRFM, Reason: "no transactions", Err: models.ErrEmptyInput}
	}
	if opts.TimeUnitDays <= 0 {
		return nil, nil, &models.DataError{Stage: models.StageRFM, Reason: fmt.Sprintf("time_unit_days must be > 0, got %v", opts.TimeUnitDays)}
	}

	maxDate := MaxInvoiceDate(txs)
	ref := opts.ReferenceDate
	if ref.IsZero() {
		ref = maxDate
	}
	if ref.Before(maxDate) {
		return nil, nil, &models.DataError{
			Stage:  models.StageRFM,
			Reason: fmt.Sprintf("reference date %s is before last invoice %s", ref.Format(time.DateOnly), maxDate.Format(time.DateOnly)),
		}
	}

	byCustomer := make(map[uint64]*accumulator)
	for _, t := range txs {
		acc, ok := byCustomer[t.CustomerID]
		if !ok {
			acc = &accumulator{first: t.InvoiceDate, last: t.InvoiceDate, invoices: map[string]struct{}{}}
			byCustomer[t.CustomerID] = acc
		}
		if t.InvoiceDate.Before(acc.first) {
			acc.first = t.InvoiceDate
		}
		if t.InvoiceDate.After(acc.last) {
			acc.last = t.InvoiceDate
		}
		acc.invoices[t.InvoiceID] = struct{}{}
		acc.total = acc.total.Add(decimal.NewFromFloat(t.Quantity).Mul(decimal.NewFromFloat(t.UnitPrice)))
	}

	ids := make([]uint64, 0, len(byCustomer))
	for id := range byCustomer {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]models.CustomerRFM, 0, len(ids))
	var excluded []models.Exclusion
	for _, id := range ids {
		acc := byCustomer[id]
		freq := len(acc.invoices)
		recency := wholeDays(acc.last.Sub(acc.first))
		tenure := wholeDays(ref.Sub(acc.first))
		row := models.CustomerRFM{
			CustomerID:   id,
			RecencyDays:  recency,
			TenureDays:   tenure,
			RecencyModel: recency / opts.TimeUnitDays,
			TenureModel:  tenure / opts.TimeUnitDays,
			Frequency:    freq,
			MonetaryAvg:  acc.total.Div(decimal.NewFromInt(int64(freq))).InexactFloat64(),
		}
		switch {
		case row.MonetaryAvg <= 0:
			excluded = append(excluded, models.Exclusion{CustomerID: id, Reason: ReasonNonPositiveAvg, RFM: row})
		case row.Frequency <= 1:
			excluded = append(excluded, models.Exclusion{CustomerID: id, Reason: ReasonSinglePurchase, RFM: row})
		default:
			rows = append(rows, row)
		}
	}
	return rows, excluded, nil
}

// Validate vérifie qu'une ligne RFM est utilisable par les modèles.
func Validate(row models.CustomerRFM, stage string) error {
	fail := func(reason string) error {
		return &models.DataError{Stage: stage, CustomerID: row.CustomerID, HasCustomer: true, Reason: reason}
	}
	switch {
	case row.Frequency < 0:
		return fail(fmt.Sprintf("negative frequency %d", row.Frequency))
	case row.RecencyModel < 0 || row.TenureModel < 0:
		return fail(fmt.Sprintf("negative recency/tenure (%v, %v)", row.RecencyModel, row.TenureModel))
	case row.RecencyModel > row.TenureModel:
		return fail(fmt.Sprintf("recency %v > tenure %v", row.RecencyModel, row.TenureModel))
	case math.IsNaN(row.MonetaryAvg) || math.IsInf(row.MonetaryAvg, 0):
		return fail("non-finite monetary_avg")
	case row.MonetaryAvg <= 0:
		return fail(fmt.Sprintf("monetary_avg must be > 0, got %v", row.MonetaryAvg))
	}
	return nil
}
