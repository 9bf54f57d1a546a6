package models

import (
	"errors"
	"fmt"
	"strings"
)

// Étapes du pipeline, utilisées dans les messages d'erreur.
const (
	StageFilter      = "filter"
	StageRFM         = "rfm"
	StageBGNBDFit    = "bgnbd-fit"
	StageGammaFit    = "gamma-gamma-fit"
	StageAggregation = "aggregation"
)

// ErrEmptyInput : plus aucune ligne exploitable après filtrage.
var ErrEmptyInput = errors.New("empty input after filtering")

// DataError : donnée d'entrée invalide pour une étape.
type DataError struct {
	Stage       string
	CustomerID  uint64
	HasCustomer bool
	Reason      string
	Err         error
}

func (e *DataError) Error() string {
	if e.HasCustomer {
		return fmt.Sprintf("%s: data error customer=%d: %s", e.Stage, e.CustomerID, e.Reason)
	}
	return fmt.Sprintf("%s: data error: %s", e.Stage, e.Reason)
}

func (e *DataError) Unwrap() error { return e.Err }

// ConvergenceError : l'optimiseur n'a pas convergé. Params = derniers paramètres connus.
type ConvergenceError struct {
	Stage      string
	Params     []float64
	Iterations int
	Status     string
	Err        error
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("%s: no convergence after %d iterations (status=%s, last params=%v)",
		e.Stage, e.Iterations, e.Status, e.Params)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConvergenceError) Unwrap() error { return e.Err }

// NumericalDomainError : une espérance conditionnelle sort de son domaine de définition.
type NumericalDomainError struct {
	CustomerID uint64
	Reason     string
}

func (e *NumericalDomainError) Error() string {
	return fmt.Sprintf("numerical domain error customer=%d: %s", e.CustomerID, e.Reason)
}

// PredictionErrors regroupe les échecs de prédiction client par client.
type PredictionErrors []error

func (pe PredictionErrors) Error() string {
	if len(pe) == 0 {
		return "no prediction errors"
	}
	const maxShown = 5
	parts := make([]string, 0, maxShown)
	for i, err := range pe {
		if i == maxShown {
			break
		}
		parts = append(parts, err.Error())
	}
	msg := fmt.Sprintf("%d customer prediction(s) failed: %s", len(pe), strings.Join(parts, "; "))
	if len(pe) > maxShown {
		msg += fmt.Sprintf("; ... (%d more)", len(pe)-maxShown)
	}
	return msg
}

// Unwrap permet errors.As sur chacune des erreurs regroupées.
func (pe PredictionErrors) Unwrap() []error { return pe }

// StageError identifie l'étape du batch qui a échoué.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
