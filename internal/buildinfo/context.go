// Package buildinfo carries build-time metadata injected through -ldflags.
package buildinfo

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
}

// NewContext returns build metadata.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the build version, or UnknownValue.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build date, or UnknownValue.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return c.Version() + " (built " + c.BuildDate() + ")"
}
