package main

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/fosstrack/fosched/pkg/log"
)

// dropPrivileges switches to the configured unprivileged user and
// group before any collaborator is initialized. Empty settings leave
// the process as it started; a configured target that cannot be
// reached is fatal to the caller.
func dropPrivileges(userName, groupName string) error {
	if userName == "" && groupName == "" {
		return nil
	}

	current := os.Getuid()
	if current != 0 {
		if userName != "" {
			if pwd, err := user.Lookup(userName); err == nil {
				if uid, err := strconv.Atoi(pwd.Uid); err == nil && uid == current {
					return nil
				}
			}
		}
		log.Logger.Warn().
			Str("user", userName).
			Str("group", groupName).
			Msg("not root, cannot change identity, continuing unprivileged")
		return nil
	}

	if groupName != "" {
		grp, err := user.LookupGroup(groupName)
		if err != nil {
			return fmt.Errorf("group %q not found: %w", groupName, err)
		}
		gid, err := strconv.Atoi(grp.Gid)
		if err != nil {
			return fmt.Errorf("group %q has non-numeric gid %q", groupName, grp.Gid)
		}
		if os.Getgid() != gid {
			if err := unix.Setgroups([]int{gid}); err != nil {
				return fmt.Errorf("setgroups %d: %w", gid, err)
			}
			if err := unix.Setgid(gid); err != nil {
				return fmt.Errorf("setgid %d: %w", gid, err)
			}
		}
	}

	if userName != "" {
		pwd, err := user.Lookup(userName)
		if err != nil {
			return fmt.Errorf("user %q not found: %w", userName, err)
		}
		uid, err := strconv.Atoi(pwd.Uid)
		if err != nil {
			return fmt.Errorf("user %q has non-numeric uid %q", userName, pwd.Uid)
		}
		if current == uid {
			return nil
		}
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("setuid %d: %w", uid, err)
		}
	}
	return nil
}
