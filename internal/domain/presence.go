package domain

import "time"

// DriverPresence is the last known online state and position of a driver.
type DriverPresence struct {
	DriverID        string
	TenantID        string
	IsOnline        bool
	Lat             *float64
	Lng             *float64
	Heading         *float64
	Accuracy        *float64
	LastHeartbeatAt time.Time
	UpdatedAt       time.Time
}

// HasPosition reports whether both coordinates are known.
func (p *DriverPresence) HasPosition() bool {
	return p.Lat != nil && p.Lng != nil
}

// Fresh reports whether the heartbeat is no older than maxAge at now.
func (p *DriverPresence) Fresh(now time.Time, maxAge time.Duration) bool {
	return !p.LastHeartbeatAt.Before(now.Add(-maxAge))
}

// Clone returns a deep copy of the presence record.
func (p *DriverPresence) Clone() *DriverPresence {
	c := *p
	c.Lat = cloneFloat(p.Lat)
	c.Lng = cloneFloat(p.Lng)
	c.Heading = cloneFloat(p.Heading)
	c.Accuracy = cloneFloat(p.Accuracy)
	return &c
}
