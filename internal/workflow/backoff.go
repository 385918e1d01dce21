package workflow

import "time"

// calculateBackoff computes the delay before a retry attempt, grounded
// on the teacher's CalculateBackoff: delay × (exponential ? 2^attempt :
// 1), per spec.md §4.H "Retries".
func calculateBackoff(policy *RetryPolicy, attempt int) time.Duration {
	base := time.Duration(policy.InitialDelaySeconds * float64(time.Second))
	if !policy.Exponential {
		return base
	}
	if attempt > 62 {
		attempt = 62
	}
	return base * time.Duration(int64(1)<<uint(attempt))
}
