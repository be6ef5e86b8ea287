package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/couchcryptid/tb-calibration/internal/domain"
	"github.com/couchcryptid/tb-calibration/internal/ingest"
)

// Request is a calibration job as received over HTTP or Kafka.
type Request struct {
	ID     string                      `json:"id,omitempty"`
	Config *ScanOverrides              `json:"config,omitempty"`
	Groups map[string][]ObservationDTO `json:"groups"`
}

// ScanOverrides replaces individual fields of the service's default scan
// configuration. Worker count and the candidate limit stay under service
// control.
type ScanOverrides struct {
	TbMin      *float64 `json:"tb_min,omitempty"`
	TbMax      *float64 `json:"tb_max,omitempty"`
	TbStep     *float64 `json:"tb_step,omitempty"`
	Pooling    *string  `json:"pooling,omitempty"`
	Criterion  *string  `json:"criterion,omitempty"`
	StartIndex *int     `json:"start_index,omitempty"`
}

// ObservationDTO is the wire form of an observation. A null or absent
// temperature is reported by store validation; a null or absent NF marks a
// day with weather only.
type ObservationDTO struct {
	Date string   `json:"date,omitempty"`
	Tmin *float64 `json:"tmin"`
	Tmax *float64 `json:"tmax"`
	NF   *float64 `json:"nf"`
}

// DecodeRequest parses a JSON request body. Unknown fields are rejected.
func DecodeRequest(data []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var req Request
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode calibration request: %w", err)
	}
	if dec.More() {
		return Request{}, fmt.Errorf("decode calibration request: trailing data after JSON object")
	}
	return req, nil
}

// Apply returns base with the set overrides applied.
func (o *ScanOverrides) Apply(base domain.ScanConfig) domain.ScanConfig {
	if o == nil {
		return base
	}
	if o.TbMin != nil {
		base.TbMin = *o.TbMin
	}
	if o.TbMax != nil {
		base.TbMax = *o.TbMax
	}
	if o.TbStep != nil {
		base.TbStep = *o.TbStep
	}
	if o.Pooling != nil {
		base.Pooling = domain.PoolingMode(*o.Pooling)
	}
	if o.Criterion != nil {
		base.Criterion = domain.Criterion(*o.Criterion)
	}
	if o.StartIndex != nil {
		base.StartIndex = *o.StartIndex
	}
	return base
}

// observations converts the wire groups into domain observations. Dates are
// optional; one that does not parse is left on the record for the store to
// drop. Group keys pass through unchanged so the store decides how an empty
// key joins the default group.
func (r Request) observations() map[string][]domain.Observation {
	out := make(map[string][]domain.Observation, len(r.Groups))
	for name, dtos := range r.Groups {
		obs := make([]domain.Observation, len(dtos))
		for i, d := range dtos {
			obs[i] = domain.Observation{
				Tmin:  valueOrNaN(d.Tmin),
				Tmax:  valueOrNaN(d.Tmax),
				NF:    valueOrNaN(d.NF),
				Group: name,
			}
			if d.Date != "" {
				date, err := ingest.ParseDate(d.Date)
				if err != nil {
					obs[i].DateErr = err.Error()
				}
				obs[i].Date = date
			}
		}
		out[name] = obs
	}
	return out
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
