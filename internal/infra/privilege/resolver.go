// Package privilege decides whether touching a path needs the elevation
// wrapper. It reads file metadata only and never escalates in-process.
package privilege

import (
	"errors"
	"io/fs"
	"path/filepath"
)

const (
	ownerWrite = 0o200
	groupWrite = 0o020
	worldWrite = 0o002
)

// Owner is the subset of file metadata the write test needs.
type Owner struct {
	UID  uint32
	GID  uint32
	Mode uint32
}

// Identity is the effective caller: uid, primary gid and supplementary groups.
type Identity struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

type Resolver struct {
	id   Identity
	stat func(path string) (Owner, error)
}

// New resolves against the current process identity.
func New() *Resolver {
	return &Resolver{id: currentIdentity(), stat: statOwner}
}

// NewWith is used when the identity or metadata source is supplied by the
// caller, typically in tests.
func NewWith(id Identity, stat func(string) (Owner, error)) *Resolver {
	return &Resolver{id: id, stat: stat}
}

func (r *Resolver) Identity() Identity { return r.id }

// NeedsElevation reports whether writing path requires the wrapper. A missing
// path defers to its parent directory; anything unresolvable needs elevation.
func (r *Resolver) NeedsElevation(path string) bool {
	o, err := r.stat(path)
	if err == nil {
		return !r.canWrite(o)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return true
	}
	parent := filepath.Dir(filepath.Clean(path))
	po, err := r.stat(parent)
	if err != nil {
		return true
	}
	return !r.canWrite(po)
}

func (r *Resolver) canWrite(o Owner) bool {
	if o.UID == r.id.UID && o.Mode&ownerWrite != 0 {
		return true
	}
	if r.inGroup(o.GID) && o.Mode&groupWrite != 0 {
		return true
	}
	return o.Mode&worldWrite != 0
}

func (r *Resolver) inGroup(gid uint32) bool {
	if gid == r.id.GID {
		return true
	}
	for _, g := range r.id.Groups {
		if g == gid {
			return true
		}
	}
	return false
}
