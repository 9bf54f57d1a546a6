package optim

import (
	"fmt"
	"math"

	"cltv-predict/pkg/models"

	"gonum.org/v1/gonum/optimize"
)

// DefaultMaxIterations borne le nombre d'itérations de Nelder-Mead.
const DefaultMaxIterations = 5000

// Problem décrit une estimation par maximum de vraisemblance pénalisée.
// NegLogLik reçoit les paramètres dans l'espace naturel (tous > 0).
type Problem struct {
	Stage         string
	NegLogLik     func(params []float64) float64
	Penalizer     float64
	Init          []float64
	MaxIterations int
}

// Result : paramètres estimés (espace naturel) et résumé du fit.
type Result struct {
	Params  []float64
	Summary models.FitSummary
}

// Objective = NegLogLik(exp(θ)) + penalizer·Σ exp(θ)². Valeurs non finies → +Inf.
func (p Problem) Objective(logParams []float64) float64 {
	params := make([]float64, len(logParams))
	penalty := 0.0
	for i, lp := range logParams {
		params[i] = math.Exp(lp)
		penalty += params[i] * params[i]
	}
	v := p.NegLogLik(params) + p.Penalizer*penalty
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.StepConvergence, optimize.FunctionThreshold, optimize.GradientThreshold:
		return true
	}
	return false
}

// Minimize minimise l'objectif pénalisé en log-paramètres (positivité garantie).
// Toute fin d'optimisation autre qu'une convergence renvoie une *models.ConvergenceError.
func Minimize(p Problem) (Result, error) {
	if len(p.Init) == 0 {
		return Result{}, fmt.Errorf("%s: empty initial parameters", p.Stage)
	}
	init := make([]float64, len(p.Init))
	for i, v := range p.Init {
		if v <= 0 {
			return Result{}, fmt.Errorf("%s: initial parameter %d must be > 0, got %v", p.Stage, i, v)
		}
		init[i] = math.Log(v)
	}
	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: p.Objective}, init, settings, &optimize.NelderMead{})

	last := append([]float64(nil), p.Init...)
	if res == nil {
		return Result{}, &models.ConvergenceError{Stage: p.Stage, Params: last, Status: "no result", Err: err}
	}
	params := make([]float64, len(res.X))
	for i, lp := range res.X {
		params[i] = math.Exp(lp)
	}
	summary := models.FitSummary{
		Iterations:       res.Stats.MajorIterations,
		FuncEvaluations:  res.Stats.FuncEvaluations,
		NegLogLikelihood: res.F,
		Status:           res.Status.String(),
	}
	if err != nil || !converged(res.Status) || math.IsInf(res.F, 0) || math.IsNaN(res.F) {
		return Result{Params: params, Summary: summary}, &models.ConvergenceError{
			Stage:      p.Stage,
			Params:     params,
			Iterations: summary.Iterations,
			Status:     summary.Status,
			Err:        err,
		}
	}
	for i, v := range params {
		if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return Result{Params: params, Summary: summary}, &models.ConvergenceError{
				Stage:      p.Stage,
				Params:     params,
				Iterations: summary.Iterations,
				Status:     fmt.Sprintf("parameter %d diverged", i),
			}
		}
	}
	return Result{Params: params, Summary: summary}, nil
}
