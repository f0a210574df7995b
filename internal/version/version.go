// ABOUTME: Build and product identification
// ABOUTME: Version is overridden at link time with -ldflags "-X"
package version

import "fmt"

// Version is the release version
var Version = "0.1.0"

const (
	Product      = "Resonate Mixer"
	Manufacturer = "Resonate"
)

// String returns the product and version, as reported to control clients
func String() string {
	return fmt.Sprintf("%s %s", Product, Version)
}
