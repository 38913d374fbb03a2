package shopify

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-catalog-sync/transport"
	"github.com/tidwall/gjson"
)

const (
	defaultThrottleBackoff = 2 * time.Second
	maxThrottleBackoff     = time.Minute
	throttledCode          = "THROTTLED"
)

// ThrottleStatus is the cost block Shopify returns under extensions.cost.
type ThrottleStatus struct {
	RequestedCost      float64
	ActualCost         float64
	MaximumAvailable   float64
	CurrentlyAvailable float64
	RestoreRate        float64
}

func ParseThrottleStatus(extensions []byte) (ThrottleStatus, bool) {
	if len(extensions) == 0 || !gjson.ValidBytes(extensions) {
		return ThrottleStatus{}, false
	}
	cost := gjson.GetBytes(extensions, "cost")
	if !cost.Exists() {
		return ThrottleStatus{}, false
	}
	status := ThrottleStatus{
		RequestedCost:      cost.Get("requestedQueryCost").Float(),
		ActualCost:         cost.Get("actualQueryCost").Float(),
		MaximumAvailable:   cost.Get("throttleStatus.maximumAvailable").Float(),
		CurrentlyAvailable: cost.Get("throttleStatus.currentlyAvailable").Float(),
		RestoreRate:        cost.Get("throttleStatus.restoreRate").Float(),
	}
	return status, status.RestoreRate > 0
}

// Wait returns how long to pause before a query costing nextCost can run
// without being throttled.
func (s ThrottleStatus) Wait(nextCost float64) time.Duration {
	if s.RestoreRate <= 0 || nextCost <= s.CurrentlyAvailable {
		return 0
	}
	seconds := (nextCost - s.CurrentlyAvailable) / s.RestoreRate
	wait := time.Duration(seconds * float64(time.Second))
	if wait > maxThrottleBackoff {
		return maxThrottleBackoff
	}
	return wait
}

func isThrottled(errs []transport.GraphQLError) bool {
	for _, entry := range errs {
		if strings.EqualFold(entry.Code(), throttledCode) {
			return true
		}
		if strings.Contains(strings.ToLower(entry.Message), "throttled") {
			return true
		}
	}
	return false
}

func parseRetryAfter(headers map[string]string) (time.Duration, bool) {
	raw := strings.TrimSpace(headerValue(headers, "retry-after"))
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
