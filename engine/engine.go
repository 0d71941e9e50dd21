// engine/engine.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harborgrid-justin/lithic-sub009/audit"
	"github.com/harborgrid-justin/lithic-sub009/cache"
	"github.com/harborgrid-justin/lithic-sub009/config"
	"github.com/harborgrid-justin/lithic-sub009/department"
	lithic_errors "github.com/harborgrid-justin/lithic-sub009/errors"
	"github.com/harborgrid-justin/lithic-sub009/hierarchy"
	"github.com/harborgrid-justin/lithic-sub009/location"
	logger "github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
	"github.com/harborgrid-justin/lithic-sub009/store"
	"github.com/harborgrid-justin/lithic-sub009/timeaccess"
	"github.com/harborgrid-justin/lithic-sub009/util"
)

const (
	reasonNoMatch          = "No matching permission found"
	reasonEvaluationFailed = "Permission evaluation failed"
	reasonUserUnavailable  = "User not found or inactive"
)

// Settings are the engine's explicit knobs; zero values take defaults.
type Settings struct {
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
}

func (s *Settings) applyDefaults() {
	if s.CacheTTL <= 0 {
		s.CacheTTL = 5 * time.Minute
	}
	if s.CacheCleanupInterval <= 0 {
		s.CacheCleanupInterval = 5 * time.Minute
	}
}

// Engine is the access-control decision core: an explicitly constructed
// orchestrator owning its decision cache and the cleanup task behind it.
type Engine struct {
	store      store.Store
	cache      cache.DecisionCache
	auditSvc   *audit.Service
	resolver   *hierarchy.Resolver
	department department.IService
	location   location.IService
	timeaccess timeaccess.IService
	steps      []Step
}

// NewEngine wires an engine from pre-built collaborators.
func NewEngine(s store.Store, c cache.DecisionCache, auditSvc *audit.Service,
	resolver *hierarchy.Resolver, dept department.IService, loc location.IService,
	ta timeaccess.IService) *Engine {

	e := &Engine{
		store:      s,
		cache:      c,
		auditSvc:   auditSvc,
		resolver:   resolver,
		department: dept,
		location:   loc,
		timeaccess: ta,
	}
	e.steps = []Step{
		&denyPolicyStep{engine: e},
		&breakGlassStep{engine: e},
		&rolePermissionStep{engine: e},
		&customPermissionStep{engine: e},
		&temporaryGrantStep{engine: e},
		&genericPolicyStep{engine: e},
	}
	return e
}

// New builds a fully wired engine over a store: in-memory decision cache,
// store-backed audit, and the three conditional gates. The returned
// engine owns the cache lifecycle; call Close when done.
func New(s store.Store, notifier util.Notifier, settings Settings) *Engine {
	settings.applyDefaults()
	c := cache.NewMemoryCache(settings.CacheTTL, settings.CacheCleanupInterval)
	auditSvc := audit.NewService(storeRecorder{s})
	if notifier == nil {
		notifier = util.NewNotificationService()
	}
	resolver := hierarchy.NewResolver(s, auditSvc)
	dept := department.NewService(s, auditSvc, c)
	loc := location.NewService(s, auditSvc, c)
	ta := timeaccess.NewService(s, auditSvc, notifier, c)
	return NewEngine(s, c, auditSvc, resolver, dept, loc, ta)
}

// NewFromConfig builds an engine from the loaded configuration, choosing
// the cache backend (memory or redis) per cache.backend. InitConfig must
// have been called first.
func NewFromConfig(s store.Store, notifier util.Notifier) (*Engine, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	var c cache.DecisionCache
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(cfg.Redis, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		c = rc
	default:
		settings := Settings{CacheTTL: cfg.Cache.TTL, CacheCleanupInterval: cfg.Cache.CleanupInterval}
		settings.applyDefaults()
		c = cache.NewMemoryCache(settings.CacheTTL, settings.CacheCleanupInterval)
	}

	auditSvc := audit.NewService(storeRecorder{s})
	if notifier == nil {
		notifier = util.NewNotificationService()
	}
	resolver := hierarchy.NewResolver(s, auditSvc)
	dept := department.NewService(s, auditSvc, c)
	loc := location.NewService(s, auditSvc, c)
	ta := timeaccess.NewService(s, auditSvc, notifier, c)
	return NewEngine(s, c, auditSvc, resolver, dept, loc, ta), nil
}

// storeRecorder adapts the store's append-only audit log to the Recorder
// contract.
type storeRecorder struct {
	store store.Store
}

func (r storeRecorder) Record(ctx context.Context, entry audit.Entry) error {
	return r.store.AppendAuditEntry(ctx, entry)
}

// Accessors for the collaborators the convenience constructor wires,
// so callers can administer grants through the same instances the
// pipeline consults.

func (e *Engine) Departments() department.IService { return e.department }

func (e *Engine) Locations() location.IService { return e.location }

func (e *Engine) TimeAccess() timeaccess.IService { return e.timeaccess }

func (e *Engine) Roles() *hierarchy.Resolver { return e.resolver }

// CleanupExpiredAccess sweeps all three gates, returning the total number
// of records purged or transitioned.
func (e *Engine) CleanupExpiredAccess(ctx context.Context) (int, error) {
	total := 0
	n, err := e.department.CleanupExpiredAccess(ctx)
	total += n
	if err != nil {
		return total, err
	}
	n, err = e.location.CleanupExpiredAccess(ctx)
	total += n
	if err != nil {
		return total, err
	}
	n, err = e.timeaccess.CleanupExpiredAccess(ctx)
	total += n
	return total, err
}

// Close releases the engine's owned resources, stopping the cache sweep.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// CacheStats exposes decision-cache effectiveness for observability.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// InvalidateUser drops every cached decision for the user. Call after any
// mutation affecting their access that bypassed this library's services.
func (e *Engine) InvalidateUser(ctx context.Context, userID string) {
	e.cache.Invalidate(ctx, userID)
}

// Evaluate decides one access request. It never returns an error and
// never panics out: any internal fault degrades to a structured denial.
// Only allow decisions are cached; super-admin and break-glass outcomes
// are always computed fresh.
func (e *Engine) Evaluate(ctx context.Context, evalCtx *model.EvaluationContext) *model.EvaluationResult {
	start := time.Now()
	result := e.evaluate(ctx, evalCtx)
	result.EvaluationTime = time.Since(start)

	if !result.Allowed && !result.CacheHit {
		e.auditSvc.RecordDenial(ctx, evalCtx.UserID, evalCtx.Resource, evalCtx.ResourceID,
			evalCtx.Action, result.Reason, evalCtx.OrganizationID, evalCtx.IPAddress, evalCtx.LocationID)
	}
	return result
}

func (e *Engine) evaluate(ctx context.Context, evalCtx *model.EvaluationContext) (result *model.EvaluationResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic during permission evaluation",
				zap.Any("panic", r),
				zap.String("userId", evalCtx.UserID),
				zap.String("resource", evalCtx.Resource))
			result = &model.EvaluationResult{Allowed: false, Reason: reasonEvaluationFailed}
		}
	}()

	key := cache.GenerateKey(evalCtx)

	if cached, ok := e.cache.Get(ctx, key); ok {
		cached.CacheHit = true
		cached.CacheKey = key
		return cached
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("Evaluation context expired before decision; denying",
			zap.Error(err), zap.String("userId", evalCtx.UserID))
		return &model.EvaluationResult{Allowed: false, Reason: reasonEvaluationFailed, CacheKey: key}
	}

	user, err := e.store.GetUser(ctx, evalCtx.UserID)
	if err != nil || !user.IsActive() {
		if err != nil {
			logger.Info("Denying for unknown user",
				zap.Error(err), zap.String("userId", evalCtx.UserID))
		}
		return &model.EvaluationResult{Allowed: false, Reason: reasonUserUnavailable, CacheKey: key}
	}
	if evalCtx.OrganizationID == "" {
		evalCtx.OrganizationID = user.OrganizationID
	}

	// Super admins bypass the pipeline and are never cached so a role
	// change takes effect immediately.
	if user.RoleID != "" {
		role, roleErr := e.store.GetRole(ctx, user.RoleID)
		if roleErr == nil && role.Name == model.SuperAdminRoleName {
			return &model.EvaluationResult{
				Allowed:         true,
				Reason:          "Super admin access",
				MatchedPolicies: []string{"role:" + role.ID},
				CacheKey:        key,
			}
		}
	}

	for _, step := range e.steps {
		if err := ctx.Err(); err != nil {
			logger.Warn("Evaluation context expired mid-pipeline; denying",
				zap.Error(err), zap.String("step", step.Name()))
			return &model.EvaluationResult{Allowed: false, Reason: reasonEvaluationFailed, CacheKey: key}
		}
		stepResult, err := step.Evaluate(ctx, evalCtx, user)
		if err != nil {
			logger.Error("Evaluation step failed; denying",
				zap.Error(err),
				zap.String("step", step.Name()),
				zap.String("userId", evalCtx.UserID))
			return &model.EvaluationResult{Allowed: false, Reason: reasonEvaluationFailed, CacheKey: key}
		}
		if stepResult == nil {
			continue
		}
		stepResult.CacheKey = key
		if stepResult.Allowed && step.Name() != stepBreakGlass {
			e.cache.Set(ctx, key, stepResult)
		}
		return stepResult
	}

	return &model.EvaluationResult{Allowed: false, Reason: reasonNoMatch, CacheKey: key}
}

// evaluatePermissionSet finds the first matching permission whose
// conditions are all satisfied. A permission with no condition block is
// unconditioned: its scope is descriptive, not an enforced constraint.
func (e *Engine) evaluatePermissionSet(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User, permissions []model.Permission, source string) (*model.EvaluationResult, error) {
	for _, perm := range permissions {
		if !permissionMatches(perm, evalCtx.Resource, evalCtx.Action) {
			continue
		}
		satisfied, conditions, err := e.evaluateConditions(ctx, evalCtx, user, perm)
		if err != nil {
			return nil, err
		}
		if !satisfied {
			continue
		}
		return &model.EvaluationResult{
			Allowed:         true,
			Reason:          fmt.Sprintf("Permission %s matched", perm.Key()),
			MatchedPolicies: []string{source},
			Conditions:      conditions,
		}, nil
	}
	return nil, nil
}

func (e *Engine) evaluateConditions(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User, perm model.Permission) (bool, []string, error) {
	if perm.Conditions == nil {
		return true, nil, nil
	}
	now := evalCtx.At()
	var conditions []string

	if len(perm.Conditions.Departments) > 0 {
		if !contains(perm.Conditions.Departments, evalCtx.DepartmentID) {
			return false, nil, nil
		}
		ok, err := e.department.HasAccess(ctx, user.ID, evalCtx.DepartmentID, model.DeptAccessLimited, now)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			return false, nil, nil
		}
		conditions = append(conditions, "department:"+evalCtx.DepartmentID)
	}

	if len(perm.Conditions.Locations) > 0 {
		if !contains(perm.Conditions.Locations, evalCtx.LocationID) {
			return false, nil, nil
		}
		check := location.Check{
			IPAddress: evalCtx.IPAddress,
			Latitude:  evalCtx.Latitude,
			Longitude: evalCtx.Longitude,
			ViaVPN:    evalCtx.ViaVPN,
			Emergency: evalCtx.BreakGlass,
		}
		ok, err := e.location.HasAccess(ctx, user.ID, evalCtx.LocationID, check, now)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			return false, nil, nil
		}
		conditions = append(conditions, "location:"+evalCtx.LocationID)
	}

	if perm.Conditions.TimeRestricted {
		ok, reason, err := e.timeaccess.CheckAccess(ctx, user.ID, now, evalCtx.BreakGlass)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			return false, nil, nil
		}
		conditions = append(conditions, "time:"+reason)
	}

	return true, conditions, nil
}

// EvaluateBatch runs independent concurrent evaluations. Result order
// matches the input order; evaluation order is unspecified.
func (e *Engine) EvaluateBatch(ctx context.Context, contexts []*model.EvaluationContext) []*model.EvaluationResult {
	results := make([]*model.EvaluationResult, len(contexts))
	g, gctx := errgroup.WithContext(ctx)
	for i := range contexts {
		i := i
		g.Go(func() error {
			results[i] = e.Evaluate(gctx, contexts[i])
			return nil
		})
	}
	// Evaluate never errors; Wait just joins the goroutines.
	_ = g.Wait()
	return results
}

// HasAnyPermission reports whether at least one context evaluates to
// allowed.
func (e *Engine) HasAnyPermission(ctx context.Context, contexts []*model.EvaluationContext) bool {
	for _, result := range e.EvaluateBatch(ctx, contexts) {
		if result.Allowed {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every context evaluates to allowed.
func (e *Engine) HasAllPermissions(ctx context.Context, contexts []*model.EvaluationContext) bool {
	for _, result := range e.EvaluateBatch(ctx, contexts) {
		if !result.Allowed {
			return false
		}
	}
	return true
}

// RequirePermission converts a denial into a caller-visible error
// carrying the reason.
func (e *Engine) RequirePermission(ctx context.Context, evalCtx *model.EvaluationContext) error {
	result := e.Evaluate(ctx, evalCtx)
	if !result.Allowed {
		return fmt.Errorf("%w: %s", lithic_errors.ErrPermissionDenied, result.Reason)
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
