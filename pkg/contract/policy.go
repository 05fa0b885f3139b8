package contract

import "time"

// CachePolicy declares whether and for how long a tool's result may be reused
// across calls. Side-effecting tools must use PolicyNoCache.
type CachePolicy string

const (
	// PolicyNoCache never stores results. This is the default.
	PolicyNoCache CachePolicy = "no_cache"

	// PolicyCacheable stores results without expiry.
	PolicyCacheable CachePolicy = "cacheable"

	// PolicyTTLShort stores results for 5 minutes.
	PolicyTTLShort CachePolicy = "ttl_short"

	// PolicyTTLMedium stores results for 1 hour.
	PolicyTTLMedium CachePolicy = "ttl_medium"

	// PolicyTTLLong stores results for 24 hours.
	PolicyTTLLong CachePolicy = "ttl_long"
)

// TTL returns the retention duration for the policy. Zero means no expiry;
// the caller must check Cacheable() before treating zero as "forever".
func (p CachePolicy) TTL() time.Duration {
	switch p {
	case PolicyTTLShort:
		return 5 * time.Minute
	case PolicyTTLMedium:
		return time.Hour
	case PolicyTTLLong:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Cacheable reports whether results under this policy may be stored at all.
func (p CachePolicy) Cacheable() bool {
	switch p {
	case PolicyCacheable, PolicyTTLShort, PolicyTTLMedium, PolicyTTLLong:
		return true
	default:
		return false
	}
}

// Valid reports whether p is a known policy value.
func (p CachePolicy) Valid() bool {
	switch p {
	case PolicyNoCache, PolicyCacheable, PolicyTTLShort, PolicyTTLMedium, PolicyTTLLong:
		return true
	default:
		return false
	}
}

// OutputLevel controls how much detail is rendered into the observation text
// the LLM sees, independent of what the tool semantically returned.
type OutputLevel string

const (
	// OutputBrief renders a one-line summary.
	OutputBrief OutputLevel = "brief"

	// OutputStandard renders a bounded preview of the payload.
	OutputStandard OutputLevel = "standard"

	// OutputFull renders the complete payload, offloading to the artifact
	// store when it exceeds the inline threshold.
	OutputFull OutputLevel = "full"
)

// Valid reports whether l is a known output level.
func (l OutputLevel) Valid() bool {
	switch l {
	case OutputBrief, OutputStandard, OutputFull:
		return true
	default:
		return false
	}
}
