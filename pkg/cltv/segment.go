package cltv

import (
	"fmt"
	"math"
	"sort"

	"cltv-predict/pkg/models"
)

// SegmentOptions : nombre de segments, part du top flag, libellés du plus faible au plus fort.
type SegmentOptions struct {
	Count       int
	TopFraction float64
	Labels      []string
}

// DefaultLabels renvoie C, B, A pour 3 segments, S1..Sk sinon.
func DefaultLabels(count int) []string {
	if count == 3 {
		return []string{"C", "B", "A"}
	}
	labels := make([]string, count)
	for i := range labels {
		labels[i] = fmt.Sprintf("S%d", i+1)
	}
	return labels
}

func (o SegmentOptions) labels() ([]string, error) {
	if o.Count < 1 {
		return nil, fmt.Errorf("segment count must be >= 1, got %d", o.Count)
	}
	if o.TopFraction < 0 || o.TopFraction > 1 {
		return nil, fmt.Errorf("top fraction must be in [0,1], got %v", o.TopFraction)
	}
	if len(o.Labels) == 0 {
		return DefaultLabels(o.Count), nil
	}
	if len(o.Labels) != o.Count {
		return nil, fmt.Errorf("%d labels for %d segments", len(o.Labels), o.Count)
	}
	return o.Labels, nil
}

// TopCount = floor(n × fraction).
func TopCount(n int, fraction float64) int {
	return int(math.Floor(float64(n)*fraction + 1e-9))
}

// RankOrder renvoie les indices de results triés par CLV décroissante, puis CustomerID croissant.
func RankOrder(results []models.CLTVResult) []int {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := results[order[i]], results[order[j]]
		if a.CLV != b.CLV {
			return a.CLV > b.CLV
		}
		return a.CustomerID < b.CustomerID
	})
	return order
}

// Segment découpe les clients en Count groupes d'effectifs égaux selon leur rang de CLV
// et pose TopFlag sur les floor(n × TopFraction) premiers rangs. Modifie results en place.
// Deux clients de même CLV peuvent tomber dans deux segments voisins : le départage se fait par CustomerID.
func Segment(results []models.CLTVResult, opts SegmentOptions) error {
	labels, err := opts.labels()
	if err != nil {
		return err
	}
	n := len(results)
	top := TopCount(n, opts.TopFraction)
	for rank, idx := range RankOrder(results) {
		bucket := rank * opts.Count / n // 0 = meilleurs clients
		results[idx].Segment = labels[opts.Count-1-bucket]
		results[idx].TopFlag = rank < top
	}
	return nil
}

// Summarize agrège les lignes notées par segment, dans l'ordre des libellés.
func Summarize(rows []models.CustomerResult, labels []string) []models.SegmentSummary {
	index := make(map[string]int, len(labels))
	out := make([]models.SegmentSummary, len(labels))
	for i, l := range labels {
		index[l] = i
		out[i].Label = l
	}
	for _, r := range rows {
		i, ok := index[r.Segment]
		if !r.Scored || !ok {
			continue
		}
		s := &out[i]
		s.Count++
		s.SumCLV += r.CLV
		if s.Count == 1 || r.CLV > s.MaxCLV {
			s.MaxCLV = r.CLV
		}
		s.MeanFrequency += float64(r.Frequency)
		s.MeanRecency += r.RecencyModel
		s.MeanMonetaryAvg += r.MonetaryAvg
	}
	for i := range out {
		if c := float64(out[i].Count); c > 0 {
			out[i].MeanCLV = out[i].SumCLV / c
			out[i].MeanFrequency /= c
			out[i].MeanRecency /= c
			out[i].MeanMonetaryAvg /= c
		}
	}
	return out
}
