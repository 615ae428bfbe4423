// Package identity describes who is observing the filesystem and when files
// came into existence.
package identity

import (
	"os"
	"os/user"
	"time"

	"github.com/tejiriaustin/fimtracker/models"
)

const unknownUser = "unknown"

// CurrentUser returns the login name of the running principal.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if name := os.Getenv(key); name != "" {
			return name
		}
	}
	return unknownUser
}

// CurrentRole classifies the running process as elevated or standard.
func CurrentRole() models.Role {
	if isElevated() {
		return models.RoleAdmin
	}
	return models.RoleStandard
}

// Times returns the creation and modification time of a file. Creation
// falls back to the best timestamp the platform offers when birth time is
// not recorded.
func Times(path string, info os.FileInfo) (created, modified time.Time) {
	modified = info.ModTime()
	created = birthTime(path, info)
	if created.IsZero() {
		created = modified
	}
	return created.UTC(), modified.UTC()
}

// Observer returns the user and role stamped on a new record.
type Observer func() (string, models.Role)

// Process observes the identity of the running process.
func Process() (string, models.Role) {
	return CurrentUser(), CurrentRole()
}
