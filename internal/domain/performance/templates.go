package performance

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type annualTargetFile struct {
	AnnualTargets []AnnualTarget `yaml:"annual_targets"`
}

// Validate checks that an annual target can serve as a KPI template.
func (a AnnualTarget) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(a.ID) == "" {
		verr.add("id", "required")
	}
	if strings.TrimSpace(a.Name) == "" {
		verr.add("name", "required")
	}
	if a.Year <= 0 {
		verr.add("year", "must be positive")
	}
	scores := map[int]bool{}
	for _, scale := range a.RatingScales {
		if scale.Min > scale.Max {
			verr.add("ratingScales", fmt.Sprintf("score %d has min above max", scale.Score))
		}
		if scores[scale.Score] {
			verr.add("ratingScales", fmt.Sprintf("score %d is listed twice", scale.Score))
		}
		scores[scale.Score] = true
	}
	seen := map[Quarter]bool{}
	for _, p := range a.Periods {
		if _, ok := ParseQuarter(string(p.Quarter)); !ok {
			verr.add("periods", "unknown quarter "+string(p.Quarter))
			continue
		}
		if seen[p.Quarter] {
			verr.add("periods", "duplicate quarter "+string(p.Quarter))
		}
		seen[p.Quarter] = true
	}
	return verr.orNil()
}

// ParseAnnualTargetsYAML decodes and validates a template payload.
func ParseAnnualTargetsYAML(data []byte) ([]AnnualTarget, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("annual targets: payload is empty")
	}
	var file annualTargetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("annual targets: decode: %w", err)
	}
	ids := map[string]bool{}
	for i := range file.AnnualTargets {
		target := &file.AnnualTargets[i]
		for j := range target.Periods {
			if q, ok := ParseQuarter(string(target.Periods[j].Quarter)); ok {
				target.Periods[j].Quarter = q
			}
		}
		if err := target.Validate(); err != nil {
			return nil, fmt.Errorf("annual targets: %q: %w", target.ID, err)
		}
		if ids[target.ID] {
			return nil, fmt.Errorf("annual targets: duplicate id %q", target.ID)
		}
		ids[target.ID] = true
	}
	return file.AnnualTargets, nil
}

// LoadAnnualTargetsFile reads templates from disk. A missing file yields no templates.
func LoadAnnualTargetsFile(path string) ([]AnnualTarget, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	data, err := os.ReadFile(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("annual targets: read %s: %w", trimmed, err)
	}
	targets, err := ParseAnnualTargetsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", trimmed, err)
	}
	return targets, nil
}
