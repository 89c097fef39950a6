// Package casebook holds project-wide metadata for the casebook module.
package casebook

// Version is the release version reported by the CLI and the HTTP API.
const Version = "0.1.0"
