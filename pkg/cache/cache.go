// Package cache coordinates writers of downloaded files through lock files
// placed next to their targets.
package cache

import (
	"os"
)

// Ensure runs fn to produce target unless target already exists. The check
// is repeated under the lock so that of several processes racing for the
// same target only the first one runs fn.
func Ensure(target string, fn func() error) error {
	if exists(target) {
		return nil
	}

	unlock, err := Lock(target)
	if err != nil {
		return err
	}
	defer unlock()

	if exists(target) {
		return nil
	}
	return fn()
}

func exists(target string) bool {
	_, err := os.Stat(target)
	return err == nil
}
