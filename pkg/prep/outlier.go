package prep

import (
	"fmt"
	"math"
	"sort"

	"cltv-predict/pkg/models"
)

// Noms de champs acceptés par CapOutliers.
const (
	FieldQuantity  = "quantity"
	FieldUnitPrice = "unit_price"
)

const (
	lowerQuantile = 0.01
	upperQuantile = 0.99
	fenceFactor   = 1.5
)

// Quantile linéaire (interpolation entre rangs, h = p·(n-1)). Entrée triée.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// UpperFence = q99 + 1.5 × (q99 - q01). NaN si values est vide.
func UpperFence(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := quantile(sorted, lowerQuantile)
	q3 := quantile(sorted, upperQuantile)
	return q3 + fenceFactor*(q3-q1)
}

func fieldAccessor(field string) (func(*models.TransactionRecord) *float64, error) {
	switch field {
	case FieldQuantity:
		return func(t *models.TransactionRecord) *float64 { return &t.Quantity }, nil
	case FieldUnitPrice:
		return func(t *models.TransactionRecord) *float64 { return &t.UnitPrice }, nil
	}
	return nil, fmt.Errorf("champ inconnu %q (attendu %q ou %q)", field, FieldQuantity, FieldUnitPrice)
}

// ClipAbove remplace par fence toute valeur du champ strictement supérieure à fence.
// Seul le plafond haut est appliqué : les valeurs basses sont traitées par le filtrage.
func ClipAbove(txs []models.TransactionRecord, field string, fence float64) (int, error) {
	get, err := fieldAccessor(field)
	if err != nil {
		return 0, err
	}
	capped := 0
	for i := range txs {
		v := get(&txs[i])
		if *v > fence {
			*v = fence
			capped++
		}
	}
	return capped, nil
}

// CapOutliers calcule la borne haute du champ sur txs puis plafonne en place.
// Renvoie la borne utilisée et le nombre de valeurs modifiées.
func CapOutliers(txs []models.TransactionRecord, field string) (float64, int, error) {
	get, err := fieldAccessor(field)
	if err != nil {
		return 0, 0, err
	}
	if len(txs) == 0 {
		return math.NaN(), 0, nil
	}
	values := make([]float64, len(txs))
	for i := range txs {
		values[i] = *get(&txs[i])
	}
	fence := UpperFence(values)
	capped, err := ClipAbove(txs, field, fence)
	return fence, capped, err
}
