package cltv

import (
	"errors"
	"math"
	"testing"

	"cltv-predict/pkg/models"
)

var (
	bg = models.BGNBDParams{R: 0.243, Alpha: 4.414, A: 0.793, B: 2.426}
	gg = models.GammaGammaParams{P: 6.25, Q: 3.74, Gamma: 15.44}
)

func monthly() Options {
	return Options{Horizon: 6 * 4.345, PeriodLength: 4.345, DiscountRate: 0.01}
}

func TestSteps(t *testing.T) {
	steps := Options{Horizon: 10, PeriodLength: 4}.Steps()
	want := []float64{4, 8, 10}
	if len(steps) != len(want) {
		t.Fatalf("got %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("got %v, want %v", steps, want)
		}
	}
	if n := len(monthly().Steps()); n != 6 {
		t.Fatalf("got %d monthly steps, want 6", n)
	}
	if steps := (Options{Horizon: 0, PeriodLength: 1}).Steps(); len(steps) != 0 {
		t.Fatalf("zero horizon must have no steps, got %v", steps)
	}
}

func TestDiscountedValue_PerPeriod(t *testing.T) {
	// une transaction par période : Σ_{k=1..3} 10 / 1.1^k
	linear := func(t float64) (float64, error) { return t, nil }
	got, err := DiscountedValue(linear, 10, Options{Horizon: 3, PeriodLength: 1, DiscountRate: 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 10/1.1 + 10/(1.1*1.1) + 10/(1.1*1.1*1.1)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v, want %v", got, want)
	}
	// actualiser le total d'un bloc donnerait 30/1.1^3 : valeur différente
	if math.Abs(got-30/math.Pow(1.1, 3)) < 1e-6 {
		t.Fatal("discounting must apply per period, not to the aggregate")
	}
}

func TestDiscountedValue_ZeroTransactions(t *testing.T) {
	zero := func(float64) (float64, error) { return 0, nil }
	got, err := DiscountedValue(zero, 250, monthly())
	if err != nil || got != 0 {
		t.Fatalf("got %v, %v; want 0, nil", got, err)
	}
}

func TestDiscountedValue_Monotonic(t *testing.T) {
	scaled := func(k float64) func(float64) (float64, error) {
		return func(t float64) (float64, error) { return k * math.Sqrt(t), nil }
	}
	opts := monthly()
	prev := -1.0
	for _, value := range []float64{1, 5, 20, 100} {
		got, err := DiscountedValue(scaled(1), value, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got < prev {
			t.Fatalf("clv decreased with value: %v < %v", got, prev)
		}
		prev = got
	}
	prev = -1
	for _, k := range []float64{0, 0.5, 1, 3} {
		got, err := DiscountedValue(scaled(k), 50, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got < prev {
			t.Fatalf("clv decreased with transactions: %v < %v", got, prev)
		}
		prev = got
	}
}

func TestDiscountedValue_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	failing := func(float64) (float64, error) { return 0, boom }
	if _, err := DiscountedValue(failing, 1, monthly()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestDiscountedValue_DecreasingExpectation(t *testing.T) {
	opts := Options{Horizon: 3, PeriodLength: 1, DiscountRate: 0.1}

	// bruit d'arrondi : toléré, incrément ramené à 0
	jitter := func(t float64) (float64, error) {
		if t == 2 {
			return 1 - 1e-12, nil
		}
		return math.Min(t, 1), nil
	}
	got, err := DiscountedValue(jitter, 10, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 10 / 1.1; math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}

	// vraie décroissance : erreur de domaine, pas de zéro silencieux
	falling := func(t float64) (float64, error) { return 5 - t, nil }
	_, err = DiscountedValue(falling, 10, opts)
	var nde *models.NumericalDomainError
	if !errors.As(err, &nde) {
		t.Fatalf("expected NumericalDomainError, got %v", err)
	}
}

func TestScoreCustomer(t *testing.T) {
	row := models.CustomerRFM{CustomerID: 1, Frequency: 5, RecencyModel: 10, TenureModel: 20, MonetaryAvg: 50}
	res, err := ScoreCustomer(bg, gg, row, monthly())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExpectedTransactions <= 0 || res.ExpectedAvgValue <= 0 || res.CLV <= 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	// sans actualisation, CLV = valeur × transactions attendues sur l'horizon
	flat := monthly()
	flat.DiscountRate = 0
	undiscounted, err := ScoreCustomer(bg, gg, row, flat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := undiscounted.ExpectedTransactions * undiscounted.ExpectedAvgValue
	if math.Abs(undiscounted.CLV-want)/want > 1e-9 {
		t.Fatalf("got %v, want %v", undiscounted.CLV, want)
	}
	if !(res.CLV < undiscounted.CLV) {
		t.Fatalf("discounting should lower clv: %v >= %v", res.CLV, undiscounted.CLV)
	}
}

func TestScore_CollectsFailures(t *testing.T) {
	rows := []models.CustomerRFM{
		{CustomerID: 1, Frequency: 5, RecencyModel: 10, TenureModel: 20, MonetaryAvg: 50},
		{CustomerID: 2, Frequency: 3, RecencyModel: 2, TenureModel: 20, MonetaryAvg: -4},
		{CustomerID: 3, Frequency: 7, RecencyModel: 19, TenureModel: 20, MonetaryAvg: 80},
	}
	calls := 0
	results, err := Score(bg, gg, rows, monthly(), func() { calls++ })
	if calls != 3 {
		t.Fatalf("progress called %d times, want 3", calls)
	}
	var pe models.PredictionErrors
	if !errors.As(err, &pe) || len(pe) != 1 {
		t.Fatalf("expected one prediction error, got %v", err)
	}
	var de *models.DataError
	if !errors.As(err, &de) || de.CustomerID != 2 {
		t.Fatalf("expected DataError for customer 2, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestScore_InvalidOptions(t *testing.T) {
	if _, err := Score(bg, gg, nil, Options{Horizon: 1, PeriodLength: 0}, nil); err == nil {
		t.Fatal("expected error for zero period, got nil")
	}
}

func TestSegment_Partition(t *testing.T) {
	for _, n := range []int{1, 2, 3, 10, 11, 100, 2570} {
		results := make([]models.CLTVResult, n)
		for i := range results {
			results[i] = models.CLTVResult{CustomerID: uint64(i + 1), CLV: float64((i * 7919) % 1000)}
		}
		if err := Segment(results, SegmentOptions{Count: 3, TopFraction: 0.2}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts := map[string]int{}
		flagged := 0
		for _, r := range results {
			counts[r.Segment]++
			if r.TopFlag {
				flagged++
			}
		}
		total := counts["A"] + counts["B"] + counts["C"]
		if total != n || len(counts) > 3 {
			t.Fatalf("n=%d: not a partition: %v", n, counts)
		}
		for label, c := range counts {
			if c < n/3 || c > n/3+1 {
				t.Fatalf("n=%d: segment %s has %d customers", n, label, c)
			}
		}
		if want := int(math.Floor(float64(n) * 0.2)); flagged != want {
			t.Fatalf("n=%d: flagged %d, want %d", n, flagged, want)
		}
	}
}

func TestSegment_OrderAndTies(t *testing.T) {
	results := []models.CLTVResult{
		{CustomerID: 6, CLV: 10},
		{CustomerID: 5, CLV: 50},
		{CustomerID: 4, CLV: 10},
		{CustomerID: 3, CLV: 90},
		{CustomerID: 2, CLV: 10},
		{CustomerID: 1, CLV: 0},
	}
	if err := Segment(results, SegmentOptions{Count: 3, TopFraction: 0.2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[uint64]string{3: "A", 5: "A", 2: "B", 4: "B", 6: "C", 1: "C"}
	for _, r := range results {
		if r.Segment != want[r.CustomerID] {
			t.Fatalf("customer %d: segment %s, want %s", r.CustomerID, r.Segment, want[r.CustomerID])
		}
		if r.TopFlag != (r.CustomerID == 3) {
			t.Fatalf("customer %d: top flag %v", r.CustomerID, r.TopFlag)
		}
	}

	order := RankOrder(results)
	var ids []uint64
	for _, i := range order {
		ids = append(ids, results[i].CustomerID)
	}
	wantIDs := []uint64{3, 5, 2, 4, 6, 1}
	for i := range wantIDs {
		if ids[i] != wantIDs[i] {
			t.Fatalf("rank order %v, want %v", ids, wantIDs)
		}
	}
}

func TestSegment_Options(t *testing.T) {
	results := []models.CLTVResult{{CustomerID: 1, CLV: 1}, {CustomerID: 2, CLV: 2}}
	if err := Segment(results, SegmentOptions{Count: 0}); err == nil {
		t.Fatal("expected error for zero segments")
	}
	if err := Segment(results, SegmentOptions{Count: 2, Labels: []string{"low"}}); err == nil {
		t.Fatal("expected error for label mismatch")
	}
	if err := Segment(results, SegmentOptions{Count: 3, TopFraction: 1.5}); err == nil {
		t.Fatal("expected error for top fraction > 1")
	}
	if err := Segment(results, SegmentOptions{Count: 2, Labels: []string{"low", "high"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[1].Segment != "high" || results[0].Segment != "low" {
		t.Fatalf("unexpected labels: %+v", results)
	}
	if got := DefaultLabels(4); got[0] != "S1" || got[3] != "S4" {
		t.Fatalf("unexpected default labels %v", got)
	}
}

func TestSummarize(t *testing.T) {
	rows := []models.CustomerResult{
		{CustomerRFM: models.CustomerRFM{Frequency: 2, MonetaryAvg: 10}, CLV: 5, Segment: "C", Scored: true},
		{CustomerRFM: models.CustomerRFM{Frequency: 4, MonetaryAvg: 30}, CLV: 15, Segment: "C", Scored: true},
		{CustomerRFM: models.CustomerRFM{Frequency: 9, MonetaryAvg: 90}, CLV: 70, Segment: "A", Scored: true},
		{CustomerRFM: models.CustomerRFM{Frequency: 1, MonetaryAvg: 12}, Scored: false},
	}
	got := Summarize(rows, []string{"C", "B", "A"})
	if len(got) != 3 {
		t.Fatalf("got %d summaries, want 3", len(got))
	}
	c := got[0]
	if c.Count != 2 || c.SumCLV != 20 || c.MeanCLV != 10 || c.MaxCLV != 15 || c.MeanFrequency != 3 || c.MeanMonetaryAvg != 20 {
		t.Fatalf("unexpected C summary: %+v", c)
	}
	if got[1].Count != 0 || got[2].Count != 1 || got[2].MaxCLV != 70 {
		t.Fatalf("unexpected summaries: %+v", got)
	}
}
