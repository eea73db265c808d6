package domain

import "time"

// SplatterParticle is a short-lived decorative ink blot.
type SplatterParticle struct {
	ID        string        `json:"id"`
	Position  Point         `json:"position"`
	Size      float64       `json:"size"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// ExpiresAt reports when the particle leaves the active set.
func (p SplatterParticle) ExpiresAt() time.Time {
	return p.CreatedAt.Add(p.TTL)
}
