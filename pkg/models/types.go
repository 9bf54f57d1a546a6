package models

import (
	"time"
)

/*
LOAD → types simples pour les transactions brutes lues depuis la source.
*/

// TransactionRecord représente une ligne de facture telle qu'elle est lue depuis la base de données.
type TransactionRecord struct {
	CustomerID    uint64
	CustomerValid bool // false quand l'identifiant client est NULL dans la source
	InvoiceID     string
	InvoiceDate   time.Time
	Quantity      float64
	UnitPrice     float64
	Country       string
}

// LineTotal = Quantity × UnitPrice
func (t TransactionRecord) LineTotal() float64 {
	return t.Quantity * t.UnitPrice
}

/*
FEATURES → une ligne RFM par client.
*/

// CustomerRFM contient les statistiques recency / tenure / frequency / monetary d'un client.
// Les champs *Days sont en jours calendaires, les champs *Model en unités de temps du modèle (semaines par défaut).
type CustomerRFM struct {
	CustomerID   uint64  `json:"customer_id"`
	RecencyDays  float64 `json:"recency_days"`
	TenureDays   float64 `json:"tenure_days"`
	RecencyModel float64 `json:"recency_model"`
	TenureModel  float64 `json:"tenure_model"`
	Frequency    int     `json:"frequency"`
	MonetaryAvg  float64 `json:"monetary_avg"`
}

// Exclusion trace un client écarté pendant l'agrégation RFM, avec la raison.
type Exclusion struct {
	CustomerID uint64
	Reason     string
	RFM        CustomerRFM
}

/*
MODELS → paramètres ajustés, immuables une fois le fit terminé.
*/

// BGNBDParams : taux d'achat λ ~ Gamma(R, Alpha), probabilité d'abandon p ~ Beta(A, B).
type BGNBDParams struct {
	R     float64 `json:"r"`
	Alpha float64 `json:"alpha"`
	A     float64 `json:"a"`
	B     float64 `json:"b"`
}

// Slice renvoie les paramètres dans l'ordre (r, alpha, a, b).
func (p BGNBDParams) Slice() []float64 {
	return []float64{p.R, p.Alpha, p.A, p.B}
}

// GammaGammaParams : valeur par transaction ~ Gamma(P, ν), ν ~ Gamma(Q, Gamma).
type GammaGammaParams struct {
	P     float64 `json:"p"`
	Q     float64 `json:"q"`
	Gamma float64 `json:"gamma"`
}

// Slice renvoie les paramètres dans l'ordre (p, q, gamma).
func (p GammaGammaParams) Slice() []float64 {
	return []float64{p.P, p.Q, p.Gamma}
}

// FitSummary décrit le déroulement d'une optimisation.
type FitSummary struct {
	Iterations       int     `json:"iterations"`
	FuncEvaluations  int     `json:"func_evaluations"`
	NegLogLikelihood float64 `json:"neg_log_likelihood"`
	Status           string  `json:"status"`
	Customers        int     `json:"customers"`
}

/*
COMPUTE → résultats par client.
*/

// CLTVResult contient les grandeurs dérivées pour un client.
type CLTVResult struct {
	CustomerID           uint64  `json:"customer_id"`
	ExpectedTransactions float64 `json:"expected_transactions"`
	ExpectedAvgValue     float64 `json:"expected_avg_value"`
	ProbAlive            float64 `json:"prob_alive"`
	CLV                  float64 `json:"clv_score"`
	Segment              string  `json:"segment_label"`
	TopFlag              bool    `json:"top_flag"`
}

// CustomerResult = CustomerRFM ⟕ CLTVResult (jointure à gauche sur CustomerID).
type CustomerResult struct {
	CustomerRFM
	ExpectedTransactions float64 `json:"expected_transactions"`
	ExpectedAvgValue     float64 `json:"expected_avg_value"`
	ProbAlive            float64 `json:"prob_alive"`
	CLV                  float64 `json:"clv_score"`
	Segment              string  `json:"segment_label"`
	TopFlag              bool    `json:"top_flag"`
	Scored               bool    `json:"scored"`
	ExclusionReason      string  `json:"exclusion_reason,omitempty"`
}

// SegmentSummary agrège les clients d'un segment.
type SegmentSummary struct {
	Label           string  `json:"label"`
	Count           int     `json:"count"`
	SumCLV          float64 `json:"sum_clv"`
	MeanCLV         float64 `json:"mean_clv"`
	MaxCLV          float64 `json:"max_clv"`
	MeanFrequency   float64 `json:"mean_frequency"`
	MeanRecency     float64 `json:"mean_recency"`
	MeanMonetaryAvg float64 `json:"mean_monetary_avg"`
}

// BatchResult est la sortie complète d'un run.
type BatchResult struct {
	RunID         string           `json:"run_id"`
	ReferenceDate time.Time        `json:"reference_date"`
	BGNBD         BGNBDParams      `json:"bgnbd"`
	GammaGamma    GammaGammaParams `json:"gamma_gamma"`
	BGNBDFit      FitSummary       `json:"bgnbd_fit"`
	GammaGammaFit FitSummary       `json:"gamma_gamma_fit"`
	Segments      []SegmentSummary `json:"segments"`
	Customers     []CustomerResult `json:"customers"`
	Excluded      int              `json:"excluded"`
	Transactions  int              `json:"transactions"`
	FilteredOut   int              `json:"filtered_out"`
}

/*
CONFIG → paramètres globaux
*/

// Config contient les paramètres passés à calculator.Run.
type Config struct {
	ReferenceDate time.Time // zéro → date max observée
	TimeUnitDays  float64   // longueur d'une unité de temps modèle, en jours
	Country       string    // filtre de population ("" = pas de filtre)
	CapFields     []string  // champs plafonnés ("quantity", "unit_price")

	PenalizerBGNBD      float64
	PenalizerGammaGamma float64
	MaxIterations       int

	Horizon      float64 // en unités modèle
	PeriodLength float64 // période d'actualisation, en unités modèle
	DiscountRate float64 // par période

	SegmentCount    int
	TopFlagFraction float64
	SegmentLabels   []string

	Verbose bool
}

// DefaultConfig : unité = semaine, horizon = 6 mois de 4.345 semaines, actualisation 1 % par mois.
func DefaultConfig() Config {
	return Config{
		TimeUnitDays:        7,
		CapFields:           []string{"quantity", "unit_price"},
		PenalizerBGNBD:      0.001,
		PenalizerGammaGamma: 0.01,
		MaxIterations:       5000,
		Horizon:             6 * 4.345,
		PeriodLength:        4.345,
		DiscountRate:        0.01,
		SegmentCount:        3,
		TopFlagFraction:     0.20,
		SegmentLabels:       []string{"C", "B", "A"},
	}
}
