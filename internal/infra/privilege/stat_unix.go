//go:build unix

package privilege

import (
	"os"

	"golang.org/x/sys/unix"
)

func statOwner(path string) (Owner, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Owner{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return Owner{UID: st.Uid, GID: st.Gid, Mode: uint32(st.Mode) & 0o7777}, nil
}

func currentIdentity() Identity {
	id := Identity{UID: uint32(unix.Geteuid()), GID: uint32(unix.Getegid())}
	groups, err := unix.Getgroups()
	if err == nil {
		for _, g := range groups {
			id.Groups = append(id.Groups, uint32(g))
		}
	}
	return id
}
