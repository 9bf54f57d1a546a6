package calculator

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"cltv-predict/pkg/bgnbd"
	"cltv-predict/pkg/cltv"
	"cltv-predict/pkg/gammagamma"
	"cltv-predict/pkg/models"
	"cltv-predict/pkg/prep"
	"cltv-predict/pkg/rfm"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Run enchaîne un batch complet : filtre → plafonnement → pays → RFM → BG/NBD → Gamma-Gamma → CLTV → segments.
// Chaque échec est renvoyé enveloppé dans une *models.StageError.
func Run(ctx context.Context, txs []models.TransactionRecord, cfg models.Config) (models.BatchResult, error) {
	res := models.BatchResult{RunID: uuid.NewString(), Transactions: len(txs)}
	debugf := func(format string, args ...any) {
		if cfg.Verbose {
			log.Printf("[DEBUG] "+format, args...)
		}
	}
	fail := func(stage string, err error) (models.BatchResult, error) {
		return res, &models.StageError{Stage: stage, Err: err}
	}

	/* FILTER → lignes exploitables, bornes hautes, population */
	if err := ctx.Err(); err != nil {
		return res, err
	}
	kept, stats := prep.FilterTransactions(txs)
	debugf("filtre: lues=%d gardées=%d client NULL=%d annulations=%d quantité<=0=%d",
		stats.Input, stats.Kept, stats.NullCustomer, stats.Cancelled, stats.NonPositiveQt)

	for _, field := range cfg.CapFields {
		fence, capped, err := prep.CapOutliers(kept, field)
		if err != nil {
			return fail(models.StageFilter, err)
		}
		debugf("plafond %s=%.4f (%d valeurs plafonnées)", field, fence, capped)
	}

	selected, otherCountry := prep.SelectCountry(kept, cfg.Country)
	res.FilteredOut = stats.Dropped() + otherCountry
	if len(selected) == 0 {
		return fail(models.StageFilter, &models.DataError{
			Stage:  models.StageFilter,
			Reason: fmt.Sprintf("aucune transaction après filtrage (pays=%q)", cfg.Country),
			Err:    models.ErrEmptyInput,
		})
	}

	/* RFM → une ligne par client */
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.ReferenceDate = cfg.ReferenceDate
	if res.ReferenceDate.IsZero() {
		res.ReferenceDate = rfm.MaxInvoiceDate(selected)
	}
	rows, excluded, err := rfm.Aggregate(selected, rfm.Options{ReferenceDate: res.ReferenceDate, TimeUnitDays: cfg.TimeUnitDays})
	if err != nil {
		return fail(models.StageRFM, err)
	}
	res.Excluded = len(excluded)
	if cfg.Verbose {
		log.Printf("[INFO] RFM: %d clients modélisés, %d exclus (référence %s)",
			len(rows), len(excluded), res.ReferenceDate.Format(time.DateOnly))
	}

	/* MODELS → fits */
	if err := ctx.Err(); err != nil {
		return res, err
	}
	bg, bgSummary, err := bgnbd.Fit(rows, bgnbd.FitOptions{Penalizer: cfg.PenalizerBGNBD, MaxIterations: cfg.MaxIterations})
	if err != nil {
		return fail(models.StageBGNBDFit, err)
	}
	res.BGNBD, res.BGNBDFit = bg, bgSummary
	if cfg.Verbose {
		log.Printf("[INFO] BG/NBD r=%.4f alpha=%.4f a=%.4f b=%.4f | nll=%.6f iter=%d",
			bg.R, bg.Alpha, bg.A, bg.B, bgSummary.NegLogLikelihood, bgSummary.Iterations)
	}

	if corr := gammagamma.FrequencyMonetaryCorrelation(rows); math.Abs(corr) > gammagamma.CorrelationWarnThreshold {
		log.Printf("[WARN] corrélation fréquence/panier moyen=%.3f : hypothèse d'indépendance Gamma-Gamma fragile", corr)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	gg, ggSummary, err := gammagamma.Fit(rows, gammagamma.FitOptions{Penalizer: cfg.PenalizerGammaGamma, MaxIterations: cfg.MaxIterations})
	if err != nil {
		return fail(models.StageGammaFit, err)
	}
	res.GammaGamma, res.GammaGammaFit = gg, ggSummary
	if cfg.Verbose {
		log.Printf("[INFO] Gamma-Gamma p=%.4f q=%.4f gamma=%.4f | nll=%.6f iter=%d",
			gg.P, gg.Q, gg.Gamma, ggSummary.NegLogLikelihood, ggSummary.Iterations)
	}

	/* COMPUTE → CLTV par client, segments */
	if err := ctx.Err(); err != nil {
		return res, err
	}
	var bar *progressbar.ProgressBar
	if cfg.Verbose {
		bar = progressbar.Default(int64(len(rows)), "cltv")
	} else {
		bar = progressbar.DefaultSilent(int64(len(rows)))
	}
	scores, err := cltv.Score(bg, gg, rows, cltv.Options{
		Horizon:      cfg.Horizon,
		PeriodLength: cfg.PeriodLength,
		DiscountRate: cfg.DiscountRate,
	}, func() { _ = bar.Add(1) })
	if err != nil {
		return fail(models.StageAggregation, err)
	}

	labels := cfg.SegmentLabels
	if len(labels) == 0 {
		labels = cltv.DefaultLabels(cfg.SegmentCount)
	}
	if err := cltv.Segment(scores, cltv.SegmentOptions{Count: cfg.SegmentCount, TopFraction: cfg.TopFlagFraction, Labels: labels}); err != nil {
		return fail(models.StageAggregation, err)
	}

	res.Customers = join(rows, scores, excluded)
	res.Segments = cltv.Summarize(res.Customers, labels)
	for _, s := range res.Segments {
		debugf("segment %s: clients=%d clv moyenne=%.2f clv totale=%.2f", s.Label, s.Count, s.MeanCLV, s.SumCLV)
	}
	return res, nil
}

// join : lignes RFM ⟕ scores sur CustomerID, plus les clients exclus (Scored=false). Trié par CustomerID.
func join(rows []models.CustomerRFM, scores []models.CLTVResult, excluded []models.Exclusion) []models.CustomerResult {
	byID := make(map[uint64]models.CLTVResult, len(scores))
	for _, s := range scores {
		byID[s.CustomerID] = s
	}
	out := make([]models.CustomerResult, 0, len(rows)+len(excluded))
	for _, r := range rows {
		cr := models.CustomerResult{CustomerRFM: r}
		if s, ok := byID[r.CustomerID]; ok {
			cr.ExpectedTransactions = s.ExpectedTransactions
			cr.ExpectedAvgValue = s.ExpectedAvgValue
			cr.ProbAlive = s.ProbAlive
			cr.CLV = s.CLV
			cr.Segment = s.Segment
			cr.TopFlag = s.TopFlag
			cr.Scored = true
		}
		out = append(out, cr)
	}
	for _, e := range excluded {
		out = append(out, models.CustomerResult{CustomerRFM: e.RFM, ExclusionReason: e.Reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}
