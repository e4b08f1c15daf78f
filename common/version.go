// Package common holds process-wide helpers shared by the binaries: logger
// setup and build information.
package common

// Version is set at build time with
// -ldflags "-X github.com/ruteri/dice-l0/common.Version=..."
var Version = "dev"

// PackageName prefixes metric names.
const PackageName = "dice_l0"
