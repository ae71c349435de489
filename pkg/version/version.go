// Package version holds build metadata set through -ldflags.
package version

// Version is the validata release. Builds override it with
// -ldflags "-X github.com/ccollicutt/validata/pkg/version.Version=v1.2.3".
var Version = "dev"
