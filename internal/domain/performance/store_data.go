package performance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (s *Store) GetPersonalPerformance(ctx context.Context, userID, annualTargetID string) (PersonalPerformance, error) {
	var doc PersonalPerformance
	var targetsJSON []byte
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, user_id, annual_target_id, quarterly_targets, created_at, updated_at
    FROM personal_performances
    WHERE user_id = $1 AND annual_target_id = $2
  `, userID, annualTargetID).Scan(&doc.ID, &doc.UserID, &doc.AnnualTargetID, &targetsJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PersonalPerformance{}, ErrNotFound
	}
	if err != nil {
		return PersonalPerformance{}, err
	}
	if err := json.Unmarshal(targetsJSON, &doc.QuarterlyTargets); err != nil {
		return PersonalPerformance{}, fmt.Errorf("decode quarterly targets: %w", err)
	}
	return doc, nil
}

// ReplacePersonalPerformance upserts the whole document keyed by (user, annual target).
func (s *Store) ReplacePersonalPerformance(ctx context.Context, doc PersonalPerformance) (PersonalPerformance, error) {
	targetsJSON, err := json.Marshal(doc.QuarterlyTargets)
	if err != nil {
		return PersonalPerformance{}, err
	}
	out := PersonalPerformance{QuarterlyTargets: doc.QuarterlyTargets}
	var storedJSON []byte
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO personal_performances (user_id, annual_target_id, quarterly_targets)
    VALUES ($1,$2,$3)
    ON CONFLICT (user_id, annual_target_id) DO UPDATE
      SET quarterly_targets = EXCLUDED.quarterly_targets,
          updated_at = now()
    RETURNING id::text, user_id, annual_target_id, quarterly_targets, created_at, updated_at
  `, doc.UserID, doc.AnnualTargetID, targetsJSON).Scan(&out.ID, &out.UserID, &out.AnnualTargetID, &storedJSON, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return PersonalPerformance{}, err
	}
	if err := json.Unmarshal(storedJSON, &out.QuarterlyTargets); err != nil {
		return PersonalPerformance{}, fmt.Errorf("decode quarterly targets: %w", err)
	}
	return out, nil
}

func (s *Store) GetAnnualTarget(ctx context.Context, annualTargetID string) (AnnualTarget, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT id, name, year, rating_scales, periods
    FROM annual_targets
    WHERE id = $1
  `, annualTargetID)
	target, err := scanAnnualTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AnnualTarget{}, ErrAnnualTargetNotFound
	}
	return target, err
}

func (s *Store) ListAnnualTargets(ctx context.Context) ([]AnnualTarget, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, year, rating_scales, periods
    FROM annual_targets
    ORDER BY year DESC, name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnnualTarget
	for rows.Next() {
		target, err := scanAnnualTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAnnualTarget(ctx context.Context, target AnnualTarget) error {
	scalesJSON, err := json.Marshal(target.RatingScales)
	if err != nil {
		return err
	}
	periodsJSON, err := json.Marshal(target.Periods)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO annual_targets (id, name, year, rating_scales, periods)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (id) DO UPDATE
      SET name = EXCLUDED.name,
          year = EXCLUDED.year,
          rating_scales = EXCLUDED.rating_scales,
          periods = EXCLUDED.periods,
          updated_at = now()
  `, target.ID, target.Name, target.Year, scalesJSON, periodsJSON)
	return err
}

func scanAnnualTarget(row pgx.Row) (AnnualTarget, error) {
	var target AnnualTarget
	var scalesJSON, periodsJSON []byte
	if err := row.Scan(&target.ID, &target.Name, &target.Year, &scalesJSON, &periodsJSON); err != nil {
		return AnnualTarget{}, err
	}
	if len(scalesJSON) > 0 {
		if err := json.Unmarshal(scalesJSON, &target.RatingScales); err != nil {
			return AnnualTarget{}, fmt.Errorf("decode rating scales: %w", err)
		}
	}
	if len(periodsJSON) > 0 {
		if err := json.Unmarshal(periodsJSON, &target.Periods); err != nil {
			return AnnualTarget{}, fmt.Errorf("decode periods: %w", err)
		}
	}
	return target, nil
}
