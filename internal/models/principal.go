package models

import "github.com/golang-jwt/jwt/v5"

// Capability names an operator permission.
type Capability string

const (
	CapabilitySyncAvailability Capability = "availability:sync"
	CapabilityViewBookings     Capability = "bookings:view"
)

// PrincipalKind distinguishes humans from scheduled jobs.
type PrincipalKind string

const (
	PrincipalOperator PrincipalKind = "operator"
	PrincipalSystem   PrincipalKind = "system"
)

// Principal is the caller of an operator command.
type Principal struct {
	ID           string        `json:"id"`
	Kind         PrincipalKind `json:"kind"`
	Capabilities []Capability  `json:"capabilities"`
}

// Can reports whether the principal holds capability c.
func (p *Principal) Can(c Capability) bool {
	if p == nil {
		return false
	}
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// OperatorRole is the role claim operator tokens must carry.
const OperatorRole = "operator"

// OperatorClaims is the JWT payload of operator access tokens.
type OperatorClaims struct {
	Role         string       `json:"role"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	jwt.RegisteredClaims
}
