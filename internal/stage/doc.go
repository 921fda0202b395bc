// Package stage defines the handler contract shared by all publish
// steps, plus the health reporting and precondition helpers handlers
// build on.
package stage
