package topology

import "fmt"

// ConfigError reports topology parameters that cannot form a reduction tree.
// It is fatal at startup, before any fetch or merge begins.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid topology (%s): %s", e.Field, e.Reason)
}
