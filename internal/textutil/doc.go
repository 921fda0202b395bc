// Package textutil provides small text normalization helpers shared across
// the pipeline: URL slug derivation and filesystem-safe names.
package textutil
