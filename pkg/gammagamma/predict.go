package gammagamma

import (
	"fmt"
	"math"

	"cltv-predict/pkg/models"
)

// ExpectedAverageValue : E[M | x, m] = (γp + p·x·m) / (p·x + q - 1),
// moyenne pondérée entre panier moyen de la population et panier observé du client.
func ExpectedAverageValue(p models.GammaGammaParams, x, m float64) (float64, error) {
	if x <= 0 {
		return 0, &models.DataError{Stage: models.StageAggregation, Reason: fmt.Sprintf("frequency must be > 0, got %v", x)}
	}
	if !(m > 0) {
		return 0, &models.DataError{Stage: models.StageAggregation, Reason: fmt.Sprintf("monetary_avg must be > 0, got %v", m)}
	}
	den := p.P*x + p.Q - 1
	if den <= 0 {
		return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("p*x+q-1 = %v <= 0 (unstable fit)", den)}
	}
	v := (p.Gamma*p.P + p.P*x*m) / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("non-finite expected value %v", v)}
	}
	return v, nil
}

// Predict applique ExpectedAverageValue à une ligne RFM et rattache le client à l'erreur éventuelle.
func Predict(p models.GammaGammaParams, row models.CustomerRFM) (float64, error) {
	v, err := ExpectedAverageValue(p, float64(row.Frequency), row.MonetaryAvg)
	switch e := err.(type) {
	case nil:
		return v, nil
	case *models.DataError:
		e.CustomerID, e.HasCustomer = row.CustomerID, true
	case *models.NumericalDomainError:
		e.CustomerID = row.CustomerID
	}
	return 0, err
}

// PopulationMeanValue = pγ / (q-1), panier moyen attendu d'un client sans historique.
func PopulationMeanValue(p models.GammaGammaParams) (float64, error) {
	if p.Q <= 1 {
		return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("q = %v <= 1, population mean undefined", p.Q)}
	}
	return p.P * p.Gamma / (p.Q - 1), nil
}
