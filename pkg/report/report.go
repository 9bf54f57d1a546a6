package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cltv-predict/pkg/models"
)

// Header : colonnes du CSV client.
var Header = []string{
	"customer_id", "recency_days", "tenure_days", "recency_model", "tenure_model", "frequency", "monetary_avg",
	"expected_transactions", "expected_avg_value", "prob_alive", "clv_score", "segment_label", "top_flag",
	"scored", "exclusion_reason",
}

// Ranked renvoie une copie des clients : notés d'abord, CLV décroissante, puis CustomerID croissant.
func Ranked(customers []models.CustomerResult) []models.CustomerResult {
	out := append([]models.CustomerResult(nil), customers...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Scored != b.Scored {
			return a.Scored
		}
		if a.CLV != b.CLV {
			return a.CLV > b.CLV
		}
		return a.CustomerID < b.CustomerID
	})
	return out
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// WriteCSV écrit une ligne par client, dans l'ordre de Ranked.
func WriteCSV(w io.Writer, customers []models.CustomerResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for _, c := range Ranked(customers) {
		record := []string{
			strconv.FormatUint(c.CustomerID, 10),
			ff(c.RecencyDays),
			ff(c.TenureDays),
			ff(c.RecencyModel),
			ff(c.TenureModel),
			strconv.Itoa(c.Frequency),
			ff(c.MonetaryAvg),
			ff(c.ExpectedTransactions),
			ff(c.ExpectedAvgValue),
			ff(c.ProbAlive),
			ff(c.CLV),
			c.Segment,
			strconv.FormatBool(c.TopFlag),
			strconv.FormatBool(c.Scored),
			c.ExclusionReason,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("error writing customer %d: %w", c.CustomerID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON écrit le BatchResult complet (paramètres, fits, segments, clients classés).
func WriteJSON(w io.Writer, res models.BatchResult) error {
	res.Customers = Ranked(res.Customers)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Write choisit le format selon l'extension : .json → JSON, sinon CSV.
func Write(path string, res models.BatchResult) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return WriteJSON(file, res)
	}
	return WriteCSV(file, res.Customers)
}
