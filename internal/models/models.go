package models

import (
	"strings"
	"time"
)

const (
	SalesAccountName     = ">sales"
	LiabilityAccountName = ">liability"
)

// External identities reserved for the pseudo accounts and the superuser.
const (
	SuperuserIdentity int64 = 0
	SalesIdentity     int64 = -1
	LiabilityIdentity int64 = -2
)

type Flags uint32

const (
	FlagCoke     Flags = 0x01
	FlagWheel    Flags = 0x02
	FlagDoor     Flags = 0x04
	FlagMeta     Flags = 0x08
	FlagInternal Flags = 0x40
	FlagDisabled Flags = 0x80

	// FlagRoleMask covers the bits that make up an account's role.
	FlagRoleMask = FlagCoke | FlagWheel | FlagMeta | FlagInternal
)

type Tier int

const (
	TierNormal Tier = iota
	TierCoke
	TierWheel
	TierMeta
)

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

func (f Flags) Tier() Tier {
	switch {
	case f.Has(FlagMeta):
		return TierMeta
	case f.Has(FlagWheel):
		return TierWheel
	case f.Has(FlagCoke):
		return TierCoke
	default:
		return TierNormal
	}
}

// String renders flags the way USER_INFO and ENUM_USERS report them,
// e.g. "coke,disabled".
func (f Flags) String() string {
	role := "user"
	switch {
	case f.Has(FlagInternal):
		role = "internal"
	case f.Has(FlagMeta):
		role = "meta"
	case f.Has(FlagWheel):
		role = "wheel"
	case f.Has(FlagCoke):
		role = "coke"
	}
	parts := []string{role}
	if f.Has(FlagDisabled) {
		parts = append(parts, "disabled")
	}
	if f.Has(FlagDoor) {
		parts = append(parts, "door")
	}
	return strings.Join(parts, ",")
}

type Account struct {
	ID       int       `db:"id" json:"id"`
	Name     string    `db:"name" json:"name"`
	UnixID   int64     `db:"unix_id" json:"unix_id"`
	Balance  int64     `db:"balance" json:"balance"`
	Flags    Flags     `db:"flags" json:"flags"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}

// TransferRecord describes one committed movement of funds. Actor is the
// authenticated account that requested it, or -1 when none is known.
type TransferRecord struct {
	ID           string    `json:"id"`
	Actor        int       `json:"actor"`
	Source       int       `json:"source"`
	Destination  int       `json:"destination"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	SourceBefore int64     `json:"source_before"`
	DestBefore   int64     `json:"dest_before"`
	SourceAfter  int64     `json:"source_after"`
	DestAfter    int64     `json:"dest_after"`
	CommittedAt  time.Time `json:"committed_at"`
}
