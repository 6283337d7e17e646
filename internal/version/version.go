// ABOUTME: Version constants for the player
// ABOUTME: Reported on startup and in the control handshake
package version

const (
	Version      = "0.1.0"
	Product      = "Kanade"
	Manufacturer = "Kanade Project"
)
