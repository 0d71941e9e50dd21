// cache/cache.go
package cache

import (
	"context"
	"strings"

	"github.com/harborgrid-justin/lithic-sub009/model"
)

// DecisionCache memoizes allow decisions. Callers only ever Set results
// with Allowed=true; denials are recomputed on every evaluation.
type DecisionCache interface {
	Get(ctx context.Context, key string) (*model.EvaluationResult, bool)
	Set(ctx context.Context, key string, result *model.EvaluationResult)
	// Invalidate removes every entry whose key belongs to the user. No
	// stale allow may survive once Invalidate returns.
	Invalidate(ctx context.Context, userID string)
	// Cleanup sweeps expired entries and returns how many were removed.
	Cleanup(ctx context.Context) int
	Stats() Stats
	Close()
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
}

// GenerateKey builds the composite context fingerprint. The user ID is
// the leading component so Invalidate can match by prefix.
func GenerateKey(evalCtx *model.EvaluationContext) string {
	parts := []string{
		evalCtx.UserID,
		evalCtx.Resource,
		evalCtx.ResourceID,
		evalCtx.Action,
		evalCtx.DepartmentID,
		evalCtx.LocationID,
		evalCtx.IPAddress,
	}
	return strings.Join(parts, ":")
}

func userPrefix(userID string) string {
	return userID + ":"
}
