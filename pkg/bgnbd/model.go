// Package bgnbd implémente le modèle Beta-Geometric / Negative-Binomial :
// λ ~ Gamma(r, α) pour le rythme d'achat, p ~ Beta(a, b) pour l'abandon après chaque achat.
package bgnbd

import (
	"errors"
	"fmt"
	"math"

	"cltv-predict/pkg/models"
	"cltv-predict/pkg/optim"
	"cltv-predict/pkg/rfm"

	"gonum.org/v1/gonum/mathext"
)

// DefaultPenalizer : coefficient L2 par défaut.
const DefaultPenalizer = 0.001

// L'axe du temps est ramené à [0, timeScaleTarget] pendant le fit.
const timeScaleTarget = 10.0

// FitOptions paramètre l'estimation.
type FitOptions struct {
	Penalizer     float64
	MaxIterations int
}

// observation = (x, t_x, T) en unités modèle.
type observation struct {
	x, tx, T float64
}

// LogLikelihood renvoie la log-vraisemblance BG/NBD d'un client (x achats, dernier à t_x, ancienneté T).
func LogLikelihood(p models.BGNBDParams, x, tx, T float64) float64 {
	r, alpha, a, b := p.R, p.Alpha, p.A, p.B
	lgRX, _ := math.Lgamma(r + x)
	lgR, _ := math.Lgamma(r)

	a1 := lgRX - lgR + r*math.Log(alpha)
	a2 := mathext.Lbeta(a, b+x) - mathext.Lbeta(a, b)
	a3 := -(r + x) * math.Log(alpha+T)
	if x <= 0 {
		return a1 + a2 + a3
	}
	a4 := math.Log(a) - math.Log(b+x-1) - (r+x)*math.Log(alpha+tx)
	return a1 + a2 + logSumExp(a3, a4)
}

func logSumExp(u, v float64) float64 {
	m := math.Max(u, v)
	if math.IsInf(m, -1) {
		return m
	}
	return m + math.Log(math.Exp(u-m)+math.Exp(v-m))
}

func validParams(p models.BGNBDParams) error {
	for i, v := range p.Slice() {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("parameter %d must be finite and > 0, got %v", i, v)
		}
	}
	return nil
}

// Fit estime (r, α, a, b) par maximum de vraisemblance pénalisée sur toutes les lignes.
func Fit(rows []models.CustomerRFM, opts FitOptions) (models.BGNBDParams, models.FitSummary, error) {
	if len(rows) == 0 {
		return models.BGNBDParams{}, models.FitSummary{}, &models.DataError{
			Stage: models.StageBGNBDFit, Reason: "no customers to fit", Err: models.ErrEmptyInput,
		}
	}

	maxT := 0.0
	for _, row := range rows {
		if err := rfm.Validate(row, models.StageBGNBDFit); err != nil {
			return models.BGNBDParams{}, models.FitSummary{}, err
		}
		maxT = math.Max(maxT, row.TenureModel)
	}
	if maxT <= 0 {
		return models.BGNBDParams{}, models.FitSummary{}, &models.DataError{
			Stage: models.StageBGNBDFit, Reason: "all tenures are zero",
		}
	}

	scale := timeScaleTarget / maxT
	obs := make([]observation, len(rows))
	for i, row := range rows {
		obs[i] = observation{x: float64(row.Frequency), tx: row.RecencyModel * scale, T: row.TenureModel * scale}
	}

	nll := func(params []float64) float64 {
		p := models.BGNBDParams{R: params[0], Alpha: params[1], A: params[2], B: params[3]}
		sum := 0.0
		for _, o := range obs {
			sum += LogLikelihood(p, o.x, o.tx, o.T)
		}
		return -sum / float64(len(obs))
	}

	res, err := optim.Minimize(optim.Problem{
		Stage:         models.StageBGNBDFit,
		NegLogLik:     nll,
		Penalizer:     opts.Penalizer,
		Init:          []float64{1, 1, 1, 1},
		MaxIterations: opts.MaxIterations,
	})
	res.Summary.Customers = len(rows)
	if err != nil {
		// derniers paramètres connus, ramenés en unités modèle
		var ce *models.ConvergenceError
		if errors.As(err, &ce) && len(ce.Params) > 1 {
			ce.Params[1] /= scale
		}
		return models.BGNBDParams{}, res.Summary, err
	}

	params := models.BGNBDParams{
		R:     res.Params[0],
		Alpha: res.Params[1] / scale,
		A:     res.Params[2],
		B:     res.Params[3],
	}
	return params, res.Summary, nil
}

// NegLogLikelihood = moyenne de -LogLikelihood sur les lignes (unités modèle, sans mise à l'échelle).
func NegLogLikelihood(p models.BGNBDParams, rows []models.CustomerRFM) float64 {
	if len(rows) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, row := range rows {
		sum += LogLikelihood(p, float64(row.Frequency), row.RecencyModel, row.TenureModel)
	}
	return -sum / float64(len(rows))
}
