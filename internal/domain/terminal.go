package domain

import "time"

// Terminal is a fixed TODA pickup point with its own passenger queue.
type Terminal struct {
	ID            string
	TenantID      string
	Name          string
	Location      string
	Lat           float64
	Lng           float64
	Capacity      int
	CurrentQueued int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Full reports whether the queue has reached a positive capacity.
func (t *Terminal) Full() bool {
	return t.Capacity > 0 && t.CurrentQueued >= t.Capacity
}
