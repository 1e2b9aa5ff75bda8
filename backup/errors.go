package backup

import "errors"

// ErrServerUnavailable is returned by Tracker.GetSession when the
// membership layer has reported that the requested server is gone.
var ErrServerUnavailable = errors.New("backup: server unavailable")

// ErrNoBackupAvailable is returned by Selector.SelectPrimary and
// SelectSecondary when no currently-known backup satisfies the
// request. See DESIGN.md for why this is returned instead of blocking:
// the engine's single cooperative driver thread must never stall on a
// transient lack of backups, so the caller (replica.performWrite)
// reschedules and retries on the next Proceed instead of blocking
// here.
var ErrNoBackupAvailable = errors.New("backup: no backup available")
