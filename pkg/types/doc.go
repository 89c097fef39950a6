// Package types defines the TestCase entity, the Store interface that every
// persistence backend implements, backend configuration, and the standard
// errors shared across Casebook.
package types
