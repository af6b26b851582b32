package domain

// Lock key namespaces. Every caller that takes both always acquires the
// project key before the market key.

// ProjectLockKey is the Locker key for a project's critical section.
func ProjectLockKey(projectID string) string { return "project:" + projectID }

// MarketLockKey is the Locker key for a market's critical section.
func MarketLockKey(marketID string) string { return "market:" + marketID }
