package cache

import "time"

// Record represents one successfully packaged archive
type Record struct {
	// ID is derived from the archive digest and timestamp
	ID string `json:"id"`

	// Version is the upstream tag that was packaged
	Version string `json:"version"`

	// Repository is the upstream clone URL
	Repository string `json:"repository"`

	// Output is the absolute path of the archive
	Output string `json:"output"`

	// Signature names the signature algorithm (e.g. "SHA-1")
	Signature string `json:"signature"`

	// Digest is the hex encoded archive signature
	Digest string `json:"digest"`

	// Entries is the number of files in the archive
	Entries int `json:"entries"`

	// Size of the archive in bytes
	Size int64 `json:"size"`

	// Timestamp when the build finished
	Timestamp time.Time `json:"timestamp"`

	// Duration of the whole run
	Duration time.Duration `json:"duration"`
}
