package service

import (
	"context"
	"time"

	"app/internal/model"
	"app/internal/notify"
	"app/internal/quota"
	"app/internal/repository"
	"app/internal/scope"

	"github.com/rs/zerolog"
)

// warningThreshold is the fraction of the monthly window at which a usage
// warning is published.
const warningThreshold = 0.8

// OperationContext carries everything needed to check and record one
// operation. Scope and plan are resolved server-side from RoutePath and
// Auth; nothing here comes from client-supplied scope or plan claims.
type OperationContext struct {
	Identity     model.Identity
	RoutePath    string
	Auth         scope.AuthState
	Format       model.Format
	SizeBytes    int64
	RequestedOps int
}

func (oc OperationContext) ops() int {
	if oc.RequestedOps <= 0 {
		return 1
	}
	return oc.RequestedOps
}

// OperationService is the quota boundary: limit checks, usage recording and
// usage stats.
type OperationService interface {
	// CheckOperationAllowed resolves the request's scope and plan and
	// evaluates the plan's windows against the identity's counters. Ledger
	// failures deny (fail closed). Authorization failures return
	// *scope.AuthorizationDeniedError.
	CheckOperationAllowed(ctx context.Context, oc OperationContext) (model.OperationResult, error)
	// RecordOperation atomically increments the identity's counters, appends
	// to the audit log, and fires a best-effort usage warning when the
	// monthly window crosses its warning threshold.
	RecordOperation(ctx context.Context, oc OperationContext) error
	// GetUsageStats returns the identity's current usage against its plan.
	GetUsageStats(ctx context.Context, oc OperationContext) (model.UsageStats, error)
	// ListRecentOperations returns the identity's audit trail since the given
	// time, newest first.
	ListRecentOperations(ctx context.Context, oc OperationContext, since time.Time, limit int) ([]model.AuditRecord, error)
}

type operationService struct {
	resolver *scope.Resolver
	counters repository.CounterRepository
	audit    repository.AuditRepository
	notifier notify.Notifier
	strict   bool
	logger   zerolog.Logger
}

// NewOperationService creates an OperationService. With strict enforcement
// RecordOperation becomes a conditional increment against the plan ceilings,
// closing the window between check and record; otherwise a concurrent burst
// may overshoot a limit by the number of in-flight requests.
func NewOperationService(
	resolver *scope.Resolver,
	counters repository.CounterRepository,
	audit repository.AuditRepository,
	notifier notify.Notifier,
	strict bool,
	logger zerolog.Logger,
) OperationService {
	return &operationService{
		resolver: resolver,
		counters: counters,
		audit:    audit,
		notifier: notifier,
		strict:   strict,
		logger:   logger.With().Str("service", "OperationService").Logger(),
	}
}

func (s *operationService) CheckOperationAllowed(ctx context.Context, oc OperationContext) (model.OperationResult, error) {
	res, err := s.resolver.Resolve(ctx, oc.RoutePath, oc.Auth)
	if err != nil {
		return model.OperationResult{}, err
	}

	plan, err := quota.GetPlan(res.PlanID)
	if err != nil {
		return model.OperationResult{}, err
	}
	if plan.Limits.MaxFileSizeBytes > 0 && oc.SizeBytes > plan.Limits.MaxFileSizeBytes {
		return model.OperationResult{
			Allowed:   false,
			PlanID:    res.PlanID,
			LimitType: "file_size",
			Message:   "file exceeds the plan's maximum size",
		}, nil
	}

	key := oc.Identity.CounterKey(res.Scope)
	rec, err := s.counters.GetOrCreate(ctx, key)
	if err != nil {
		// Fail closed: denying beats silently allowing unmetered usage.
		s.logger.Error().Err(err).Str("identity_key", key).Msg("Usage ledger unavailable; denying operation")
		return model.OperationResult{
			Allowed: false,
			PlanID:  res.PlanID,
			Message: "usage service unavailable, please retry",
		}, nil
	}

	return quota.CheckOperationLimits(res.PlanID, rec.MonthlyUsed, rec.DailyUsed, rec.HourlyUsed, oc.ops())
}

func (s *operationService) RecordOperation(ctx context.Context, oc OperationContext) error {
	res, err := s.resolver.Resolve(ctx, oc.RoutePath, oc.Auth)
	if err != nil {
		return err
	}
	key := oc.Identity.CounterKey(res.Scope)

	if s.strict {
		plan, err := quota.GetPlan(res.PlanID)
		if err != nil {
			return err
		}
		applied, err := s.counters.IncrementIfBelow(ctx, key, oc.ops(),
			plan.Limits.MonthlyOperations,
			plan.Limits.MaxOperationsPerDay,
			plan.Limits.MaxOperationsPerHour,
		)
		if err != nil {
			return err
		}
		if !applied {
			return &quota.LimitExceededError{LimitType: "plan", Remaining: 0}
		}
	} else if err := s.counters.Increment(ctx, key, oc.ops()); err != nil {
		return err
	}

	if err := s.audit.Append(ctx, model.AuditRecord{
		At:          time.Now().UTC(),
		IdentityKey: key,
		Scope:       res.Scope,
		PlanID:      res.PlanID,
		Format:      oc.Format,
		SizeBytes:   oc.SizeBytes,
		Outcome:     "recorded",
	}); err != nil {
		// The increment already happened; losing one audit row is not worth
		// failing the operation.
		s.logger.Error().Err(err).Str("identity_key", key).Msg("Failed to append audit record")
	}

	s.maybeWarn(ctx, key, res.PlanID)
	return nil
}

// maybeWarn publishes a limit warning when the monthly window crosses the
// warning threshold. Best effort: any failure is logged and swallowed.
func (s *operationService) maybeWarn(ctx context.Context, identityKey, planID string) {
	plan, err := quota.GetPlan(planID)
	if err != nil || plan.Limits.MonthlyOperations <= 0 {
		return
	}
	rec, err := s.counters.GetOrCreate(ctx, identityKey)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity_key", identityKey).Msg("Skipping usage warning check")
		return
	}
	limit := plan.Limits.MonthlyOperations
	if float64(rec.MonthlyUsed) >= warningThreshold*float64(limit) {
		s.notifier.LimitWarning(ctx, identityKey, planID, "monthly", rec.MonthlyUsed, limit)
	}
}

func (s *operationService) GetUsageStats(ctx context.Context, oc OperationContext) (model.UsageStats, error) {
	res, err := s.resolver.Resolve(ctx, oc.RoutePath, oc.Auth)
	if err != nil {
		return model.UsageStats{}, err
	}
	plan, err := quota.GetPlan(res.PlanID)
	if err != nil {
		return model.UsageStats{}, err
	}
	rec, err := s.counters.GetOrCreate(ctx, oc.Identity.CounterKey(res.Scope))
	if err != nil {
		return model.UsageStats{}, err
	}
	return model.UsageStats{
		PlanID:       res.PlanID,
		MonthlyUsed:  rec.MonthlyUsed,
		MonthlyLimit: plan.Limits.MonthlyOperations,
		DailyUsed:    rec.DailyUsed,
		DailyLimit:   plan.Limits.MaxOperationsPerDay,
		HourlyUsed:   rec.HourlyUsed,
		HourlyLimit:  plan.Limits.MaxOperationsPerHour,
	}, nil
}

func (s *operationService) ListRecentOperations(ctx context.Context, oc OperationContext, since time.Time, limit int) ([]model.AuditRecord, error) {
	res, err := s.resolver.Resolve(ctx, oc.RoutePath, oc.Auth)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.audit.ListByIdentity(ctx, oc.Identity.CounterKey(res.Scope), since, limit)
}
