// Package model holds the plain data types shared across the monitoring
// core: the project descriptor discovered from the catalog, the
// selected-project view the state machine works from, and the small
// enums (factory tag, pool type, lifecycle status) attached to them.
package model

import "time"

// LifecycleStatus is the catalog's own status field for a project,
// distinct from this repo's Phase (internal/lifecycle).
type LifecycleStatus string

const (
	StatusInitialized LifecycleStatus = "initialized"
	StatusUndergrad   LifecycleStatus = "undergrad"
	StatusAvailable   LifecycleStatus = "available"
)

// FactoryTag enumerates the bonding-curve factory a project was
// launched from.
type FactoryTag int

const (
	FactoryBondingCurveV2 FactoryTag = iota
	FactoryBondingCurveV4
	FactoryVibes
	FactoryOther
)

func (f FactoryTag) String() string {
	names := [...]string{"bonding-curve-v2", "bonding-curve-v4", "vibes", "other"}
	if int(f) < 0 || int(f) >= len(names) {
		return "other"
	}
	return names[f]
}

// ParseFactoryTag maps the catalog's wire value to a FactoryTag,
// defaulting to FactoryOther for anything unrecognized.
func ParseFactoryTag(s string) FactoryTag {
	switch s {
	case "bonding-curve-v2":
		return FactoryBondingCurveV2
	case "bonding-curve-v4":
		return FactoryBondingCurveV4
	case "vibes":
		return FactoryVibes
	default:
		return FactoryOther
	}
}

// PoolType distinguishes a pre-graduation bonding curve from a
// post-graduation conventional AMM pair.
type PoolType int

const (
	PoolCurve PoolType = iota
	PoolAMMV2
)

func (p PoolType) String() string {
	if p == PoolAMMV2 {
		return "ammv2"
	}
	return "curve"
}

// ProjectDescriptor is the immutable catalog-sourced view of one
// project, as returned by the Catalog Client.
type ProjectDescriptor struct {
	ID           int64
	Name         string
	Symbol       string
	Factory      FactoryTag
	Status       LifecycleStatus
	PreTokenPair *string
	LPAddress    *string
	TokenAddress *string
	CreatedAt    time.Time
	LaunchedAt   *time.Time
	LPCreatedAt  *time.Time

	// MarketCapUsd is the catalog's own reported market cap, used by
	// the FDV calculator as a "catalog-estimate" fallback when the
	// on-chain read fails.
	MarketCapUsd *string
}

// AnchorTime computes T0 = launchedAt ?? lpCreatedAt ?? createdAt, or
// the zero time if none are set (callers must then drop the candidate).
func (p *ProjectDescriptor) AnchorTime() time.Time {
	if p.LaunchedAt != nil && !p.LaunchedAt.IsZero() {
		return *p.LaunchedAt
	}
	if p.LPCreatedAt != nil && !p.LPCreatedAt.IsZero() {
		return *p.LPCreatedAt
	}
	return p.CreatedAt
}

// SelectedProject is the descriptor plus the machine's derived view of
// which pool to watch and the anchor time the launch window is computed
// from.
type SelectedProject struct {
	Descriptor  ProjectDescriptor
	PoolAddress string
	PoolType    PoolType
	T0          time.Time
}
