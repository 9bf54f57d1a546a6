package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"cltv-predict/pkg/models"
	"cltv-predict/pkg/prep"

	"gopkg.in/yaml.v3"
)

// DateLayout : format des dates dans le fichier et en ligne de commande.
const DateLayout = "2006-01-02"

// Config est la représentation YAML de la configuration d'un batch.
type Config struct {
	Source           SourceConfig     `yaml:"source"`
	ReferenceDate    string           `yaml:"reference_date"`
	TimeUnitDays     float64          `yaml:"time_unit_days"`
	PopulationFilter PopulationConfig `yaml:"population_filter"`
	Outliers         OutlierConfig    `yaml:"outliers"`
	BGNBD            ModelConfig      `yaml:"bgnbd"`
	GammaGamma       ModelConfig      `yaml:"gamma_gamma"`
	Optimizer        OptimizerConfig  `yaml:"optimizer"`
	CLTV             CLTVConfig       `yaml:"cltv"`
	Segments         SegmentConfig    `yaml:"segments"`
	Output           OutputConfig     `yaml:"output"`
	Verbose          bool             `yaml:"verbose"`
}

// SourceConfig : base de données des transactions.
type SourceConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// PopulationConfig : population cible.
type PopulationConfig struct {
	Country string `yaml:"country"`
}

// OutlierConfig : champs plafonnés.
type OutlierConfig struct {
	Fields []string `yaml:"fields"`
}

// ModelConfig : réglages d'un modèle.
type ModelConfig struct {
	PenalizerCoef float64 `yaml:"penalizer_coef"`
}

// OptimizerConfig : budget de l'optimiseur, partagé par les deux fits.
type OptimizerConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// CLTVConfig : horizon et actualisation, en unités modèle.
type CLTVConfig struct {
	Horizon      float64 `yaml:"horizon"`
	PeriodLength float64 `yaml:"period_length"`
	DiscountRate float64 `yaml:"discount_rate"`
}

// SegmentConfig : segmentation par rang. Labels vide → C, B, A pour 3 segments, S1..Sk sinon.
type SegmentConfig struct {
	Count           int      `yaml:"count"`
	TopFlagFraction float64  `yaml:"top_flag_fraction"`
	Labels          []string `yaml:"labels"`
}

// OutputConfig : fichier de sortie (.csv ou .json).
type OutputConfig struct {
	Path string `yaml:"path"`
}

// Default renvoie la configuration par défaut.
func Default() Config {
	d := models.DefaultConfig()
	return Config{
		Source:       SourceConfig{Table: "online_retail"},
		TimeUnitDays: d.TimeUnitDays,
		Outliers:     OutlierConfig{Fields: d.CapFields},
		BGNBD:        ModelConfig{PenalizerCoef: d.PenalizerBGNBD},
		GammaGamma:   ModelConfig{PenalizerCoef: d.PenalizerGammaGamma},
		Optimizer:    OptimizerConfig{MaxIterations: d.MaxIterations},
		CLTV:         CLTVConfig{Horizon: d.Horizon, PeriodLength: d.PeriodLength, DiscountRate: d.DiscountRate},
		Segments:     SegmentConfig{Count: d.SegmentCount, TopFlagFraction: d.TopFlagFraction},
		Output:       OutputConfig{Path: "cltv.csv"},
		Verbose:      true,
	}
}

// Load lit un fichier YAML par-dessus les valeurs par défaut. path vide → valeurs par défaut.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejette les réglages incohérents.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if c.ReferenceDate != "" {
		if _, err := time.Parse(DateLayout, c.ReferenceDate); err != nil {
			add("reference_date: attendu YYYY-MM-DD, reçu %q", c.ReferenceDate)
		}
	}
	if c.TimeUnitDays <= 0 {
		add("time_unit_days must be > 0")
	}
	for _, f := range c.Outliers.Fields {
		if f != prep.FieldQuantity && f != prep.FieldUnitPrice {
			add("outliers.fields: champ inconnu %q", f)
		}
	}
	if c.BGNBD.PenalizerCoef < 0 || c.GammaGamma.PenalizerCoef < 0 {
		add("penalizer_coef must be >= 0")
	}
	if c.Optimizer.MaxIterations < 0 {
		add("optimizer.max_iterations must be >= 0")
	}
	if c.CLTV.Horizon <= 0 || c.CLTV.PeriodLength <= 0 {
		add("cltv.horizon and cltv.period_length must be > 0")
	}
	if c.CLTV.DiscountRate < 0 {
		add("cltv.discount_rate must be >= 0")
	}
	if c.Segments.Count < 1 {
		add("segments.count must be >= 1")
	}
	if c.Segments.TopFlagFraction < 0 || c.Segments.TopFlagFraction > 1 {
		add("segments.top_flag_fraction must be in [0,1]")
	}
	if n := len(c.Segments.Labels); n != 0 && n != c.Segments.Count {
		add("segments.labels: %d libellés pour %d segments", n, c.Segments.Count)
	}
	if len(problems) > 0 {
		return fmt.Errorf("config invalide: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Batch convertit la configuration en models.Config pour calculator.Run.
func (c Config) Batch() (models.Config, error) {
	if err := c.Validate(); err != nil {
		return models.Config{}, err
	}
	var ref time.Time
	if c.ReferenceDate != "" {
		ref, _ = time.Parse(DateLayout, c.ReferenceDate)
	}
	return models.Config{
		ReferenceDate:       ref,
		TimeUnitDays:        c.TimeUnitDays,
		Country:             c.PopulationFilter.Country,
		CapFields:           c.Outliers.Fields,
		PenalizerBGNBD:      c.BGNBD.PenalizerCoef,
		PenalizerGammaGamma: c.GammaGamma.PenalizerCoef,
		MaxIterations:       c.Optimizer.MaxIterations,
		Horizon:             c.CLTV.Horizon,
		PeriodLength:        c.CLTV.PeriodLength,
		DiscountRate:        c.CLTV.DiscountRate,
		SegmentCount:        c.Segments.Count,
		TopFlagFraction:     c.Segments.TopFlagFraction,
		SegmentLabels:       c.Segments.Labels,
		Verbose:             c.Verbose,
	}, nil
}
