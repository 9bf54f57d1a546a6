package prep

import (
	"strings"

	"cltv-predict/pkg/models"
)

// CancellationMarker : les factures annulées / retournées contiennent ce marqueur.
const CancellationMarker = "C"

// FilterStats compte les lignes écartées par motif.
type FilterStats struct {
	Input         int
	Kept          int
	NullCustomer  int
	Cancelled     int
	NonPositiveQt int
}

// Dropped = lignes écartées, tous motifs confondus.
func (s FilterStats) Dropped() int {
	return s.Input - s.Kept
}

// FilterTransactions écarte : client NULL, factures d'annulation, quantités <= 0.
// txs n'est pas modifié ; la tranche renvoyée est une copie.
func FilterTransactions(txs []models.TransactionRecord) ([]models.TransactionRecord, FilterStats) {
	stats := FilterStats{Input: len(txs)}
	kept := make([]models.TransactionRecord, 0, len(txs))
	for _, t := range txs {
		switch {
		case !t.CustomerValid:
			stats.NullCustomer++
		case strings.Contains(t.InvoiceID, CancellationMarker):
			stats.Cancelled++
		case t.Quantity <= 0:
			stats.NonPositiveQt++
		default:
			kept = append(kept, t)
		}
	}
	stats.Kept = len(kept)
	return kept, stats
}

// SelectCountry garde les lignes du pays demandé ("" = tout garder).
// Appliqué après le plafonnement : les bornes sont calculées sur tout le catalogue.
func SelectCountry(txs []models.TransactionRecord, country string) ([]models.TransactionRecord, int) {
	if country == "" {
		return txs, 0
	}
	kept := make([]models.TransactionRecord, 0, len(txs))
	for _, t := range txs {
		if t.Country == country {
			kept = append(kept, t)
		}
	}
	return kept, len(txs) - len(kept)
}
