// Package gammagamma modélise la valeur moyenne par transaction :
// z ~ Gamma(p, ν) pour chaque achat, ν ~ Gamma(q, γ) entre clients.
package gammagamma

import (
	"fmt"
	"math"

	"cltv-predict/pkg/models"
	"cltv-predict/pkg/optim"

	"gonum.org/v1/gonum/stat"
)

// DefaultPenalizer : coefficient L2 par défaut.
const DefaultPenalizer = 0.01

// CorrelationWarnThreshold : au-delà, l'hypothèse d'indépendance fréquence / panier est douteuse.
const CorrelationWarnThreshold = 0.3

// FitOptions paramètre l'estimation.
type FitOptions struct {
	Penalizer     float64
	MaxIterations int
}

// LogLikelihood : log-vraisemblance Gamma-Gamma d'un client (x achats, panier moyen m).
func LogLikelihood(p models.GammaGammaParams, x, m float64) float64 {
	px := p.P * x
	lgPXQ, _ := math.Lgamma(px + p.Q)
	lgPX, _ := math.Lgamma(px)
	lgQ, _ := math.Lgamma(p.Q)
	return lgPXQ - lgPX - lgQ +
		p.Q*math.Log(p.Gamma) +
		(px-1)*math.Log(m) +
		px*math.Log(x) -
		(px+p.Q)*math.Log(x*m+p.Gamma)
}

// Fit estime (p, q, γ). Les clients sans achat répété observé (frequency = 0) n'entrent pas dans le fit.
func Fit(rows []models.CustomerRFM, opts FitOptions) (models.GammaGammaParams, models.FitSummary, error) {
	type obs struct{ x, m float64 }
	data := make([]obs, 0, len(rows))
	for _, row := range rows {
		if row.Frequency < 0 {
			return models.GammaGammaParams{}, models.FitSummary{}, &models.DataError{
				Stage: models.StageGammaFit, CustomerID: row.CustomerID, HasCustomer: true,
				Reason: fmt.Sprintf("negative frequency %d", row.Frequency),
			}
		}
		if row.Frequency == 0 {
			continue
		}
		if !(row.MonetaryAvg > 0) || math.IsInf(row.MonetaryAvg, 0) {
			return models.GammaGammaParams{}, models.FitSummary{}, &models.DataError{
				Stage: models.StageGammaFit, CustomerID: row.CustomerID, HasCustomer: true,
				Reason: fmt.Sprintf("monetary_avg must be > 0, got %v", row.MonetaryAvg),
			}
		}
		data = append(data, obs{x: float64(row.Frequency), m: row.MonetaryAvg})
	}
	if len(data) == 0 {
		return models.GammaGammaParams{}, models.FitSummary{}, &models.DataError{
			Stage: models.StageGammaFit, Reason: "no customer with frequency >= 1", Err: models.ErrEmptyInput,
		}
	}

	nll := func(params []float64) float64 {
		p := models.GammaGammaParams{P: params[0], Q: params[1], Gamma: params[2]}
		sum := 0.0
		for _, o := range data {
			sum += LogLikelihood(p, o.x, o.m)
		}
		return -sum / float64(len(data))
	}

	res, err := optim.Minimize(optim.Problem{
		Stage:         models.StageGammaFit,
		NegLogLik:     nll,
		Penalizer:     opts.Penalizer,
		Init:          []float64{1, 1, 1},
		MaxIterations: opts.MaxIterations,
	})
	res.Summary.Customers = len(data)
	if err != nil {
		return models.GammaGammaParams{}, res.Summary, err
	}
	return models.GammaGammaParams{P: res.Params[0], Q: res.Params[1], Gamma: res.Params[2]}, res.Summary, nil
}

// FrequencyMonetaryCorrelation : corrélation de Pearson entre frequency et monetary_avg.
// NaN si moins de deux lignes.
func FrequencyMonetaryCorrelation(rows []models.CustomerRFM) float64 {
	if len(rows) < 2 {
		return math.NaN()
	}
	freq := make([]float64, len(rows))
	monetary := make([]float64, len(rows))
	for i, row := range rows {
		freq[i] = float64(row.Frequency)
		monetary[i] = row.MonetaryAvg
	}
	return stat.Correlation(freq, monetary, nil)
}
