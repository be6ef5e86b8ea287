package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/tb-calibration/internal/domain"
)

// File is a calibration settings file. Every field is optional; set fields
// override the base configuration they are applied to.
type File struct {
	TbMin         *float64 `yaml:"tb_min"`
	TbMax         *float64 `yaml:"tb_max"`
	TbStep        *float64 `yaml:"tb_step"`
	Pooling       *string  `yaml:"pooling"`
	Criterion     *string  `yaml:"criterion"`
	StartIndex    *int     `yaml:"start_index"`
	Workers       *int     `yaml:"workers"`
	MaxCandidates *int     `yaml:"max_candidates"`

	Columns Columns `yaml:"columns"`
}

// Columns names input CSV columns explicitly. Empty names are auto-detected.
type Columns struct {
	Date  string `yaml:"date"`
	Tmin  string `yaml:"tmin"`
	Tmax  string `yaml:"tmax"`
	NF    string `yaml:"nf"`
	Group string `yaml:"group"`
}

// LoadFile reads and decodes a YAML settings file. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return &file, nil
}

// Apply returns base with every field set in the file overridden.
func (f *File) Apply(base domain.ScanConfig) domain.ScanConfig {
	if f == nil {
		return base
	}
	if f.TbMin != nil {
		base.TbMin = *f.TbMin
	}
	if f.TbMax != nil {
		base.TbMax = *f.TbMax
	}
	if f.TbStep != nil {
		base.TbStep = *f.TbStep
	}
	if f.Pooling != nil {
		base.Pooling = domain.PoolingMode(*f.Pooling)
	}
	if f.Criterion != nil {
		base.Criterion = domain.Criterion(*f.Criterion)
	}
	if f.StartIndex != nil {
		base.StartIndex = *f.StartIndex
	}
	if f.Workers != nil {
		base.Workers = *f.Workers
	}
	if f.MaxCandidates != nil {
		base.MaxCandidates = *f.MaxCandidates
	}
	return base
}
