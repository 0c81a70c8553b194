package model

import (
	"fmt"
	"strings"
)

// Status is the confirmation state of an event relative to chain finality.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusPending   Status = "PENDING"
	StatusReverted  Status = "REVERTED"
	StatusInactive  Status = "INACTIVE"
	StatusDropped   Status = "DROPPED"
)

var allStatuses = map[Status]struct{}{
	StatusConfirmed: {},
	StatusPending:   {},
	StatusReverted:  {},
	StatusInactive:  {},
	StatusDropped:   {},
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := allStatuses[status]; !ok {
		return "", fmt.Errorf("unknown event status: %q", s)
	}

	return status, nil
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	_, ok := allStatuses[s]
	return ok
}

// Family identifies an entity family.
type Family string

const (
	FamilyItem      Family = "item"
	FamilyOwnership Family = "ownership"
	FamilyToken     Family = "token"
)

// AllFamilies lists the supported entity families in a stable order.
var AllFamilies = []Family{FamilyItem, FamilyOwnership, FamilyToken}

// ParseFamily parses a family name, case-insensitively.
func ParseFamily(s string) (Family, error) {
	family := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range AllFamilies {
		if f == family {
			return f, nil
		}
	}

	return "", fmt.Errorf("unknown entity family: %q", s)
}
