package models

import (
	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
)

// Descriptor is a globally registered capability module. Registration is
// write-once: descriptors are immutable afterwards and re-registering a key
// is an error, never a silent no-op.
type Descriptor struct {
	Key           id.ModuleKey `json:"key"`
	CapabilityRef string       `json:"capability_ref"`
	Premium       bool         `json:"premium"`
	PremiumCost   id.Amount    `json:"premium_cost"`
	RegisteredAt  id.Height    `json:"registered_at"`
}

// NewDescriptor validates and constructs a module descriptor.
func NewDescriptor(key id.ModuleKey, capabilityRef string, premium bool, premiumCost id.Amount, height id.Height) (*Descriptor, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "module key is required")
	}
	if capabilityRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "capability reference is required")
	}
	if premium && premiumCost == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "premium module requires a non-zero cost")
	}
	return &Descriptor{
		Key:           key,
		CapabilityRef: capabilityRef,
		Premium:       premium,
		PremiumCost:   premiumCost,
		RegisteredAt:  height,
	}, nil
}

// Activation is the per-(identity, module) slot state.
type Activation struct {
	Identity    id.IdentityID `json:"identity"`
	Key         id.ModuleKey  `json:"key"`
	Active      bool          `json:"active"`
	ActivatedAt id.Height     `json:"activated_at"`
}
