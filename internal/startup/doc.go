// Package startup handles application bootstrap: configuration loading from
// environment variables, directory validation, build information, and the
// structured startup/shutdown log output.
package startup
