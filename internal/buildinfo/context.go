// Package buildinfo holds build-time metadata, kept apart from user configuration
package buildinfo

import "fmt"

// Context is injected at startup from linker flags
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion returns the version or "unknown"
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return "unknown"
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown"
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return "unknown"
	}
	return c.BuildDate
}

// Release is the release name reported to telemetry
func (c *Context) Release() string {
	return fmt.Sprintf("certmigrate@%s", c.GetVersion())
}
