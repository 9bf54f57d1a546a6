package bgnbd

import (
	"fmt"
	"math"

	"cltv-predict/pkg/models"

	"gonum.org/v1/gonum/mathext"
)

const (
	// |a-1| en dessous de ce seuil → forme limite.
	unitAThreshold = 1e-9
	limitMaxTerms  = 1_000_000
	limitTol       = 1e-15
)

// logHyp2F1 renvoie log 2F1(A, B; C; z) pour 0 <= z < 1.
// Si l'évaluation directe déborde, on passe par la transformation d'Euler
// 2F1(A,B;C;z) = (1-z)^(C-A-B) · 2F1(C-A, C-B; C; z).
func logHyp2F1(A, B, C, z float64) (float64, error) {
	h := mathext.Hypergeo(A, B, C, z)
	if h > 0 && !math.IsInf(h, 0) {
		return math.Log(h), nil
	}
	alt := mathext.Hypergeo(C-A, C-B, C, z)
	if alt > 0 && !math.IsInf(alt, 0) {
		return math.Log(alt) + (C-A-B)*math.Log1p(-z), nil
	}
	return 0, fmt.Errorf("2F1(%g, %g; %g; %g) not finite (direct=%g, euler=%g)", A, B, C, z, h, alt)
}

// unitALimit = lim_{a→1} (a+b+x-1)/(a-1) · [1 - (1-z)^A · 2F1(A, B; a+b+x-1; z)]
//
//	= B · Σ_{n≥1} NB(n; A, z) · Σ_{k<n} 1/(B+k)
//
// avec A = r+x, B = b+x et NB la loi binomiale négative (1-z)^A (A)_n z^n / n!.
func unitALimit(A, B, z float64) (float64, error) {
	if z == 0 {
		return 0, nil
	}
	lgA, _ := math.Lgamma(A)
	logBase := A*math.Log1p(-z) - lgA
	logZ := math.Log(z)
	mode := (A - 1) * z / (1 - z)

	sum, harmonic := 0.0, 0.0
	for n := 1; n <= limitMaxTerms; n++ {
		fn := float64(n)
		harmonic += 1 / (B + fn - 1)
		lgAN, _ := math.Lgamma(A + fn)
		lgN1, _ := math.Lgamma(fn + 1)
		term := math.Exp(logBase+lgAN-lgN1+fn*logZ) * harmonic
		sum += term
		if fn > mode && term <= limitTol*sum {
			return B * sum, nil
		}
	}
	return 0, fmt.Errorf("a=1 limit series did not converge in %d terms (A=%g, z=%g)", limitMaxTerms, A, z)
}

// ExpectedTransactions : E[Y(t) | x, t_x, T], nombre d'achats attendus sur une fenêtre future de longueur t.
func ExpectedTransactions(p models.BGNBDParams, x, tx, T, t float64) (float64, error) {
	if err := validParams(p); err != nil {
		return 0, &models.NumericalDomainError{Reason: err.Error()}
	}
	if x < 0 || tx < 0 || T < 0 || t < 0 {
		return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("negative input (x=%v, t_x=%v, T=%v, t=%v)", x, tx, T, t)}
	}
	if t == 0 {
		return 0, nil
	}

	r, alpha, a, b := p.R, p.Alpha, p.A, p.B
	A := r + x
	B := b + x
	C := a + b + x - 1
	z := t / (alpha + T + t)

	var numerator float64
	if math.Abs(a-1) < unitAThreshold {
		v, err := unitALimit(A, B, z)
		if err != nil {
			return 0, &models.NumericalDomainError{Reason: err.Error()}
		}
		numerator = v
	} else {
		if C <= 0 {
			return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("a+b+x-1 = %v <= 0", C)}
		}
		logHyp, err := logHyp2F1(A, B, C, z)
		if err != nil {
			return 0, &models.NumericalDomainError{Reason: err.Error()}
		}
		// 1 - ((α+T)/(α+T+t))^(r+x) · 2F1
		second := -math.Expm1(logHyp + A*math.Log1p(-z))
		numerator = C / (a - 1) * second
	}

	denominator := 1.0
	if x > 0 {
		if b+x-1 <= 0 {
			return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("b+x-1 = %v <= 0", b+x-1)}
		}
		denominator += a / (b + x - 1) * math.Exp(A*math.Log((alpha+T)/(alpha+tx)))
	}

	v := numerator / denominator
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("non-finite expectation (num=%v, den=%v)", numerator, denominator)}
	case v < -1e-9:
		return 0, &models.NumericalDomainError{Reason: fmt.Sprintf("negative expectation %v", v)}
	case v < 0:
		v = 0
	}
	return v, nil
}

// Predict applique ExpectedTransactions à une ligne RFM et rattache le client à l'erreur éventuelle.
func Predict(p models.BGNBDParams, row models.CustomerRFM, t float64) (float64, error) {
	v, err := ExpectedTransactions(p, float64(row.Frequency), row.RecencyModel, row.TenureModel, t)
	if err != nil {
		if de, ok := err.(*models.NumericalDomainError); ok {
			de.CustomerID = row.CustomerID
		}
		return 0, err
	}
	return v, nil
}

// ProbabilityAlive : P(client encore actif à T | x, t_x, T). Vaut 1 quand x = 0.
func ProbabilityAlive(p models.BGNBDParams, x, tx, T float64) float64 {
	if x == 0 {
		return 1
	}
	logDiv := (p.R+x)*math.Log((p.Alpha+T)/(p.Alpha+tx)) + math.Log(p.A/(p.B+x-1))
	return 1 / (1 + math.Exp(logDiv))
}
