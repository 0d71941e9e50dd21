// location/anomaly.go
package location

import (
	"context"
	"time"

	"go.uber.org/zap"

	logger "github.com/harborgrid-justin/lithic-sub009/logging"
)

// Anomaly scoring weights. The score is a deterministic function of the
// bounded audit sample, not a probabilistic model.
const (
	scoreNewLocation    = 30
	scorePublicIP       = 20
	scoreRapidRelocate  = 40
	anomalyThreshold    = 50
	auditSampleLimit    = 100
	auditSampleWindow   = 30 * 24 * time.Hour
	rapidRelocateWindow = time.Hour
)

// AnomalyScore summarizes how unusual an access attempt looks against the
// user's recent history.
type AnomalyScore struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// Anomalous reports whether the cumulative score crosses the threshold.
func (a AnomalyScore) Anomalous() bool {
	return a.Score >= anomalyThreshold
}

// ScoreAccess scores one access attempt against up to the last 100 audit
// entries from the past 30 days. A store failure scores as anomalous:
// missing history is not a reason to trust the attempt.
//
// The score is advisory. It never gates HasAccess or the evaluation
// pipeline; security review tooling calls it over the audit history the
// engine produces and decides what to do with flagged attempts.
func (s *Service) ScoreAccess(ctx context.Context, userID, locationID, ipAddress string, now time.Time) AnomalyScore {
	history, err := s.store.RecentAuditEntries(ctx, userID, now.Add(-auditSampleWindow), auditSampleLimit)
	if err != nil {
		logger.Error("Failed to load audit history for anomaly scoring",
			zap.Error(err), zap.String("userId", userID))
		return AnomalyScore{Score: anomalyThreshold, Reasons: []string{"audit history unavailable"}}
	}

	var result AnomalyScore

	if locationID != "" {
		known := false
		for _, entry := range history {
			if entry.LocationID == locationID {
				known = true
				break
			}
		}
		if !known {
			result.Score += scoreNewLocation
			result.Reasons = append(result.Reasons, "access from a location with no recent history")
		}
	}

	if ipAddress != "" && !IsPrivateIP(ipAddress) {
		result.Score += scorePublicIP
		result.Reasons = append(result.Reasons, "access from a non-private IP address")
	}

	// Entries come back newest first; the first with a location is the
	// prior access point.
	for _, entry := range history {
		if entry.LocationID == "" {
			continue
		}
		if entry.LocationID != locationID && now.Sub(entry.Timestamp) <= rapidRelocateWindow {
			result.Score += scoreRapidRelocate
			result.Reasons = append(result.Reasons, "location change within an hour of prior access")
		}
		break
	}

	return result
}
