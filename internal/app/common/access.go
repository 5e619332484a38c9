package common

import (
	"context"
	"os"
	"os/user"
	"strings"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
)

// Caller is the identity an operation runs for.
type Caller struct {
	UID      int
	Username string
	Groups   []string
}

// CurrentCaller resolves the process identity. Group lookup failures leave
// Groups empty, which only narrows what the caller may do.
func CurrentCaller() Caller {
	c := Caller{UID: os.Getuid()}
	u, err := user.Current()
	if err != nil {
		return c
	}
	c.Username = u.Username
	gids, err := u.GroupIds()
	if err != nil {
		return c
	}
	for _, gid := range gids {
		if g, err := user.LookupGroupId(gid); err == nil {
			c.Groups = append(c.Groups, g.Name)
		}
	}
	return c
}

// Authorizer binds a permission to a caller. elevated reports whether the
// operation will run anything through the elevation wrapper. Implementations
// return an Unauthorized failure to refuse.
type Authorizer interface {
	Authorize(ctx context.Context, caller Caller, perm model.Permission, elevated bool) error
}

// GroupAuthorizer allows everything that stays within the caller's own
// rights. Privileged permissions exercised through the wrapper are limited
// to root and members of AdminGroups.
type GroupAuthorizer struct {
	AdminGroups []string
}

func (a GroupAuthorizer) Authorize(_ context.Context, caller Caller, perm model.Permission, elevated bool) error {
	if !perm.Privileged() || !elevated || caller.UID == 0 {
		return nil
	}
	for _, g := range caller.Groups {
		for _, admin := range a.AdminGroups {
			if g == admin {
				return nil
			}
		}
	}
	name := caller.Username
	if name == "" {
		name = "current user"
	}
	return failure.Newf(failure.Unauthorized, "authorize", "%s lacks permission %q (%s); requires root or membership in: %s",
		name, string(perm), perm.Description(), strings.Join(a.AdminGroups, ", "))
}

// Require authorizes perm for the session's caller.
func (s *Session) Require(ctx context.Context, perm model.Permission, elevated bool) error {
	if s.Authorizer == nil {
		return failure.New(failure.Unauthorized, "authorize", "no authorizer configured")
	}
	return s.Authorizer.Authorize(ctx, s.Caller, perm, elevated)
}
