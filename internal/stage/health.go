package stage

// Health summarizes whether the tool behind an adapter can be invoked.
// Optional tools only degrade the experience when missing.
type Health struct {
	Name     string
	Ready    bool
	Optional bool
	Detail   string
}

// Healthy constructs a ready Health record.
func Healthy(name, detail string) Health {
	return Health{Name: name, Ready: true, Detail: detail}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
