// Package logging configures slog for vidpress: a pretty console handler
// for interactive use, a JSON handler for machine consumption, attribute
// helpers, and context-derived fields shared by the workflow manager and
// stage handlers.
package logging
