package domain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// minFitPoints is the smallest number of points an OLS line can be fit to.
const minFitPoints = 2

// Group is the date-ordered observation series of one sowing date or cultivar.
type Group struct {
	Name         string        `json:"name"`
	Observations []Observation `json:"observations"`
}

// Warning is a non-fatal data-quality note raised while building a Store.
type Warning struct {
	Group   string `json:"group"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ValidationReport describes what NewStore accepted, dropped, and flagged.
// WeatherOnly counts accepted records without a development count.
type ValidationReport struct {
	Accepted     int                      `json:"accepted"`
	WeatherOnly  int                      `json:"weather_only,omitempty"`
	Dropped      []*DataError             `json:"dropped,omitempty"`
	FailedGroups []*InsufficientDataError `json:"failed_groups,omitempty"`
	Warnings     []Warning                `json:"warnings,omitempty"`
}

// Store holds validated groups. It is read-only once built; callers must not
// modify the slices it returns.
type Store struct {
	groups []Group
}

// NewStore validates the input and builds a Store.
//
// Records under the empty key join DefaultGroup after any records already
// keyed "default"; indices in the report follow that merged order.
//
// Records that fail Observation.Validate are dropped and listed in the report.
// Records without NF are kept for thermal time and noted as a warning. A group
// with fewer than two records carrying NF is excluded and listed as an
// InsufficientDataError. NewStore fails when no group survives; the error
// joins every group failure.
func NewStore(input map[string][]Observation) (*Store, ValidationReport, error) {
	var report ValidationReport
	input = mergeUnnamed(input)

	names := make([]string, 0, len(input))
	for name := range input {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []error
	groups := make([]Group, 0, len(names))
	for _, name := range names {
		usable := make([]Observation, 0, len(input[name]))
		counted := 0
		for i, obs := range input[name] {
			obs.Group = name
			if err := obs.Validate(i); err != nil {
				var dataErr *DataError
				if errors.As(err, &dataErr) {
					report.Dropped = append(report.Dropped, dataErr)
				}
				continue
			}
			if obs.HasNF() {
				counted++
			}
			usable = append(usable, obs)
		}

		if counted < minFitPoints {
			failure := &InsufficientDataError{Group: name, Points: counted, Need: minFitPoints}
			report.FailedGroups = append(report.FailedGroups, failure)
			failures = append(failures, failure)
			continue
		}

		slices.SortStableFunc(usable, func(a, b Observation) int {
			return a.Date.Compare(b.Date)
		})
		report.Warnings = append(report.Warnings, groupWarnings(name, usable)...)
		report.Accepted += len(usable)
		report.WeatherOnly += len(usable) - counted
		groups = append(groups, Group{Name: name, Observations: usable})
	}

	if len(groups) == 0 {
		if len(failures) == 0 {
			return nil, report, &InsufficientDataError{Need: minFitPoints}
		}
		return nil, report, fmt.Errorf("build observation store: %w", errors.Join(failures...))
	}
	return &Store{groups: groups}, report, nil
}

// mergeUnnamed folds the records keyed "" into DefaultGroup. The caller's map
// is not modified.
func mergeUnnamed(input map[string][]Observation) map[string][]Observation {
	unnamed, ok := input[""]
	if !ok {
		return input
	}
	merged := make(map[string][]Observation, len(input))
	for name, obs := range input {
		if name != "" {
			merged[name] = obs
		}
	}
	merged[DefaultGroup] = append(slices.Clone(merged[DefaultGroup]), unnamed...)
	return merged
}

// groupWarnings flags decreasing development counts, repeated dates, and
// records that carry no count in a date-ordered group.
func groupWarnings(group string, obs []Observation) []Warning {
	var warnings []Warning
	lastNF, firstMissing, missing := -1, -1, 0
	for i, cur := range obs {
		if !cur.HasNF() {
			if missing == 0 {
				firstMissing = i
			}
			missing++
		} else {
			if lastNF >= 0 && cur.NF < obs[lastNF].NF {
				warnings = append(warnings, Warning{
					Group:   group,
					Index:   i,
					Message: fmt.Sprintf("NF decreases from %g to %g", obs[lastNF].NF, cur.NF),
				})
			}
			lastNF = i
		}
		if i > 0 && !cur.Date.IsZero() && cur.Date.Equal(obs[i-1].Date) {
			warnings = append(warnings, Warning{
				Group:   group,
				Index:   i,
				Message: "duplicate date " + cur.Date.Format(time.DateOnly),
			})
		}
	}
	if missing > 0 {
		warnings = append(warnings, Warning{
			Group:   group,
			Index:   firstMissing,
			Message: fmt.Sprintf("%d of %d records have no NF and count toward thermal time only", missing, len(obs)),
		})
	}
	return warnings
}

// Groups returns the groups in name order.
func (s *Store) Groups() []Group {
	return slices.Clone(s.groups)
}

// Group looks up a group by name.
func (s *Store) Group(name string) (Group, bool) {
	for _, g := range s.groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// Len returns the number of groups.
func (s *Store) Len() int { return len(s.groups) }

// Points returns the total number of observations across all groups,
// including records without NF.
func (s *Store) Points() int {
	n := 0
	for _, g := range s.groups {
		n += len(g.Observations)
	}
	return n
}
