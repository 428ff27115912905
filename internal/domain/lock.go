package domain

import "time"

// AdvisoryLock is a named, leased, cooperative lock
type AdvisoryLock struct {
	Name          string        `json:"name"`
	Handle        string        `json:"handle"`
	AcquiredAt    time.Time     `json:"acquiredAt"`
	RenewedAt     time.Time     `json:"renewedAt"`
	LeaseDuration time.Duration `json:"leaseDuration"`
}

// ExpiresAt returns the end of the current lease
func (l *AdvisoryLock) ExpiresAt() time.Time {
	return l.RenewedAt.Add(l.LeaseDuration)
}

// IsExpired returns true if the lease has run out at the given time
func (l *AdvisoryLock) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt())
}
