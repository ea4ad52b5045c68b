// Package privdrop drops root privileges after sockets have been opened,
// so a process that needed CAP_NET_BIND_SERVICE or raw-socket access at
// startup doesn't keep running as root for the lifetime of a scan.
package privdrop

import (
	"fmt"
	"log/slog"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Config names the user to drop to and, optionally, a directory to chroot
// into first. Both are no-ops when the process isn't running as root.
type Config struct {
	User string
	Root string
}

// Apply chroots into cfg.Root (if set) and then permanently drops to
// cfg.User (or "nobody" if unset). It is a no-op when the effective user
// isn't root, matching the common expectation that privilege dropping
// only ever lowers privilege, never raises it.
func Apply(cfg Config, logger *slog.Logger) error {
	if unix.Geteuid() != 0 {
		return nil
	}

	if cfg.Root != "" {
		if err := unix.Chroot(cfg.Root); err != nil {
			return fmt.Errorf("chroot %q: %w", cfg.Root, err)
		}
		if err := unix.Chdir("/"); err != nil {
			return fmt.Errorf("chdir after chroot: %w", err)
		}
	}

	username := cfg.User
	if username == "" {
		username = "nobody"
	}

	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("lookup user %q: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parse uid for %q: %w", username, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parse gid for %q: %w", username, err)
	}

	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("setgid %d: %w", gid, err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("setuid %d: %w", uid, err)
	}

	logger.Info("privileges dropped", "user", username, "uid", uid, "gid", gid)
	return nil
}
