// Package services holds cross-cutting service concerns: the error
// taxonomy shared by stage handlers and HTTP clients, structured
// per-field validation errors, and context annotations used for
// structured logging.
package services
