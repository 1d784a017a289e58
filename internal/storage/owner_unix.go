//go:build !windows

package storage

import (
	"os"
	"strconv"
)

// ChownToInvoker gives path to the user that ran sudo, when running under sudo.
// Elsewhere it does nothing.
func ChownToInvoker(path string) error {
	if os.Geteuid() != 0 {
		return nil
	}
	uidStr, gidStr := os.Getenv("SUDO_UID"), os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return nil
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return err
	}
	return os.Chown(path, uid, gid)
}
