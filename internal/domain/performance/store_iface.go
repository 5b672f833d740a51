package performance

import "context"

type StoreAPI interface {
	GetPersonalPerformance(ctx context.Context, userID, annualTargetID string) (PersonalPerformance, error)
	ReplacePersonalPerformance(ctx context.Context, doc PersonalPerformance) (PersonalPerformance, error)
	GetAnnualTarget(ctx context.Context, annualTargetID string) (AnnualTarget, error)
	ListAnnualTargets(ctx context.Context) ([]AnnualTarget, error)
	UpsertAnnualTarget(ctx context.Context, target AnnualTarget) error
}
