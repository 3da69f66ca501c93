// Package venue models the custody venues a balance can live in.
package venue

import "fmt"

// Venue identifies the custody or execution context of a balance.
type Venue string

const (
	// VenueVault is a self-custodied token account owned by the vault.
	VenueVault Venue = "vault"
	// VenueDrift is a balance held at the Drift margin venue. No on-chain
	// token account backs it.
	VenueDrift Venue = "drift"
)

// Parse converts a raw venue string into a Venue, rejecting unknown values
// so an unhandled venue can never silently pass through.
func Parse(s string) (Venue, error) {
	switch Venue(s) {
	case VenueVault:
		return VenueVault, nil
	case VenueDrift:
		return VenueDrift, nil
	default:
		return "", fmt.Errorf("unknown venue %q", s)
	}
}

func (v Venue) String() string {
	return string(v)
}
