package cltv

import (
	"fmt"
	"math"

	"cltv-predict/pkg/bgnbd"
	"cltv-predict/pkg/gammagamma"
	"cltv-predict/pkg/models"
)

// En dessous de ce seuil, un incrément négatif est un bruit d'arrondi.
const negativeTolerance = 1e-9

// Options : horizon et période d'actualisation en unités modèle, taux par période.
type Options struct {
	Horizon      float64
	PeriodLength float64
	DiscountRate float64
}

// Validate rejette les réglages incohérents.
func (o Options) Validate() error {
	switch {
	case !(o.Horizon >= 0) || math.IsInf(o.Horizon, 0):
		return fmt.Errorf("horizon must be >= 0, got %v", o.Horizon)
	case !(o.PeriodLength > 0) || math.IsInf(o.PeriodLength, 0):
		return fmt.Errorf("period length must be > 0, got %v", o.PeriodLength)
	case !(o.DiscountRate > -1):
		return fmt.Errorf("discount rate must be > -1, got %v", o.DiscountRate)
	}
	return nil
}

// Steps renvoie les bornes de fin de période s_k = min(k·période, horizon).
func (o Options) Steps() []float64 {
	if o.Horizon <= 0 {
		return nil
	}
	n := int(math.Ceil(o.Horizon/o.PeriodLength - 1e-9))
	steps := make([]float64, 0, n)
	for k := 1; k <= n; k++ {
		steps = append(steps, math.Min(float64(k)*o.PeriodLength, o.Horizon))
	}
	return steps
}

// DiscountedValue = Σ_k avgValue · (E[Y(s_k)] - E[Y(s_{k-1})]) / (1+d)^(s_k/période).
// expectedAt renvoie le nombre cumulé d'achats attendus jusqu'à t.
func DiscountedValue(expectedAt func(t float64) (float64, error), avgValue float64, opts Options) (float64, error) {
	clv := 0.0
	prev, prevStep := 0.0, 0.0
	for _, s := range opts.Steps() {
		cum, err := expectedAt(s)
		if err != nil {
			return 0, err
		}
		incr := cum - prev
		switch {
		case incr < -negativeTolerance:
			return 0, &models.NumericalDomainError{
				Reason: fmt.Sprintf("expected transactions decrease between t=%v and t=%v (%v → %v)", prevStep, s, prev, cum),
			}
		case incr < 0:
			incr = 0
		}
		clv += avgValue * incr / math.Pow(1+opts.DiscountRate, s/opts.PeriodLength)
		prev, prevStep = cum, s
	}
	return clv, nil
}

// ScoreCustomer calcule les grandeurs dérivées d'un client à partir des deux modèles ajustés.
func ScoreCustomer(bg models.BGNBDParams, gg models.GammaGammaParams, row models.CustomerRFM, opts Options) (models.CLTVResult, error) {
	res := models.CLTVResult{CustomerID: row.CustomerID}

	et, err := bgnbd.Predict(bg, row, opts.Horizon)
	if err != nil {
		return res, err
	}
	ev, err := gammagamma.Predict(gg, row)
	if err != nil {
		return res, err
	}
	clv, err := DiscountedValue(func(t float64) (float64, error) {
		return bgnbd.Predict(bg, row, t)
	}, ev, opts)
	if err != nil {
		if de, ok := err.(*models.NumericalDomainError); ok {
			de.CustomerID = row.CustomerID
		}
		return res, err
	}

	res.ExpectedTransactions = et
	res.ExpectedAvgValue = ev
	res.ProbAlive = bgnbd.ProbabilityAlive(bg, float64(row.Frequency), row.RecencyModel, row.TenureModel)
	res.CLV = clv
	return res, nil
}

// Score applique ScoreCustomer à toutes les lignes. Les échecs sont tous collectés
// et renvoyés ensemble (models.PredictionErrors) : aucun client n'est écarté en silence.
// progress (optionnel) est appelé après chaque client.
func Score(bg models.BGNBDParams, gg models.GammaGammaParams, rows []models.CustomerRFM, opts Options, progress func()) ([]models.CLTVResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	results := make([]models.CLTVResult, 0, len(rows))
	var failures models.PredictionErrors
	for _, row := range rows {
		res, err := ScoreCustomer(bg, gg, row, opts)
		if err != nil {
			failures = append(failures, err)
		} else {
			results = append(results, res)
		}
		if progress != nil {
			progress()
		}
	}
	if len(failures) > 0 {
		return results, failures
	}
	return results, nil
}
