//go:build !unix

package privilege

import "errors"

var errUnsupported = errors.New("file ownership is not available on this platform")

func statOwner(path string) (Owner, error) {
	_ = path
	return Owner{}, errUnsupported
}

func currentIdentity() Identity {
	return Identity{}
}
