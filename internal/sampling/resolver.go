package sampling

// AppSet holds application identifiers with a per-app override.
type AppSet map[string]struct{}

// Resolve reports whether elevated sampling should be on for app. The global switch
// wins before the override set is consulted.
func Resolve(global bool, overrides AppSet, app string) bool {
	if global {
		return true
	}

	_, ok := overrides[app]
	return ok
}
