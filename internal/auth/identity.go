package auth

import (
	"errors"
	"hash/fnv"
	"log"
	"os/user"
	"strconv"

	"dispense/internal/models"
)

var ErrUnknownUser = errors.New("unknown user")

// IdentityResolver maps a username onto its external identity.
type IdentityResolver interface {
	Resolve(username string) (int64, error)
}

// UnixIdentity resolves names through the system user database.
type UnixIdentity struct{}

func (UnixIdentity) Resolve(username string) (int64, error) {
	if id, ok := pseudoIdentity(username); ok {
		return id, nil
	}
	u, err := user.Lookup(username)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return 0, ErrUnknownUser
		}
		return 0, err
	}
	uid, err := strconv.ParseInt(u.Uid, 10, 64)
	if err != nil {
		return 0, err
	}
	return uid, nil
}

// LocalIdentity invents stable identities for deployments without a shared
// user database. root keeps 0; everyone else lands at 1000 or above.
type LocalIdentity struct{}

func (LocalIdentity) Resolve(username string) (int64, error) {
	if id, ok := pseudoIdentity(username); ok {
		return id, nil
	}
	if username == "" {
		return 0, ErrUnknownUser
	}
	h := fnv.New32a()
	h.Write([]byte(username))
	return 1000 + int64(h.Sum32()%(1<<30)), nil
}

func pseudoIdentity(username string) (int64, bool) {
	switch username {
	case "root":
		return models.SuperuserIdentity, true
	case models.SalesAccountName:
		return models.SalesIdentity, true
	case models.LiabilityAccountName:
		return models.LiabilityIdentity, true
	}
	return 0, false
}

// UnixGroups grants role flags to members of the named system groups.
type UnixGroups struct {
	groups map[string]models.Flags
}

func NewUnixGroups(groups map[string]models.Flags) *UnixGroups {
	return &UnixGroups{groups: groups}
}

// DefaultGroups maps the coke and wheel groups onto their flags.
func DefaultGroups() map[string]models.Flags {
	return map[string]models.Flags{
		"coke":  models.FlagCoke,
		"wheel": models.FlagWheel,
	}
}

func (g *UnixGroups) GroupFlags(username string) models.Flags {
	u, err := user.Lookup(username)
	if err != nil {
		return 0
	}
	gids, err := u.GroupIds()
	if err != nil {
		log.Printf("auth: group lookup for %s: %v", username, err)
		return 0
	}
	var flags models.Flags
	for _, gid := range gids {
		group, err := user.LookupGroupId(gid)
		if err != nil {
			continue
		}
		flags |= g.groups[group.Name]
	}
	return flags
}
