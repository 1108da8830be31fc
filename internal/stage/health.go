package stage

// Health reports whether a stage can make progress. Detail names the missing
// setting or collaborator when Ready is false.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports a ready stage.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports a stage that cannot run, with the reason.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// MissingSetting reports a stage blocked on an unset configuration key.
func MissingSetting(name, key string) Health {
	return Unhealthy(name, key+" is not set")
}
