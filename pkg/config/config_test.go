package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	b, err := cfg.Batch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.TimeUnitDays != 7 || b.PenalizerBGNBD != 0.001 || b.PenalizerGammaGamma != 0.01 {
		t.Fatalf("unexpected defaults: %+v", b)
	}
	if b.SegmentCount != 3 || b.TopFlagFraction != 0.20 || !b.ReferenceDate.IsZero() || len(b.SegmentLabels) != 0 {
		t.Fatalf("unexpected defaults: %+v", b)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cltv.yaml")
	content := `
reference_date: "2011-12-11"
population_filter:
  country: "United Kingdom"
bgnbd:
  penalizer_coef: 0.002
cltv:
  horizon: 52.14
  discount_rate: 0.02
segments:
  count: 4
  labels: [D, C, B, A]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := cfg.Batch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.ReferenceDate.Equal(time.Date(2011, 12, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("reference date %v", b.ReferenceDate)
	}
	if b.Country != "United Kingdom" || b.PenalizerBGNBD != 0.002 || b.Horizon != 52.14 || b.DiscountRate != 0.02 {
		t.Fatalf("overrides not applied: %+v", b)
	}
	// non surchargés → défauts
	if b.PenalizerGammaGamma != 0.01 || b.PeriodLength != 4.345 || b.TimeUnitDays != 7 {
		t.Fatalf("defaults lost: %+v", b)
	}
	if b.SegmentCount != 4 || len(b.SegmentLabels) != 4 {
		t.Fatalf("segments not applied: %+v", b)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("cltv: [not, a, map"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"reference_date":    func(c *Config) { c.ReferenceDate = "11/12/2011" },
		"time_unit_days":    func(c *Config) { c.TimeUnitDays = 0 },
		"outliers.fields":   func(c *Config) { c.Outliers.Fields = []string{"price"} },
		"penalizer_coef":    func(c *Config) { c.BGNBD.PenalizerCoef = -1 },
		"cltv.horizon":      func(c *Config) { c.CLTV.Horizon = 0 },
		"discount_rate":     func(c *Config) { c.CLTV.DiscountRate = -0.1 },
		"segments.count":    func(c *Config) { c.Segments.Count = 0 },
		"top_flag_fraction": func(c *Config) { c.Segments.TopFlagFraction = 1.2 },
		"segments.labels":   func(c *Config) { c.Segments.Labels = []string{"X"} },
	}
	for want, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected validation error, got %v", want, err)
		}
		if _, err := cfg.Batch(); err == nil {
			t.Fatalf("%s: Batch should refuse invalid config", want)
		}
	}
}
