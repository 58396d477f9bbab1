// Package common holds process-wide settings shared by the binaries.
package common

// PackageName is the metrics namespace and default log service name.
const PackageName = "seal_session"

// Version is overridden at build time with -ldflags "-X github.com/ruteri/seal-session/common.Version=...".
var Version = "dev"
