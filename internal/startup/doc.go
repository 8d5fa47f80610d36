// Package startup handles application initialization, configuration
// loading from environment variables, and structured startup/shutdown
// logging.
package startup
