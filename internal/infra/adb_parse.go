package infra

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

var (
	ownerPackage     = regexp.MustCompile(`(?m)^\s*package=(\S+)`)
	lockTaskPackages = regexp.MustCompile(`(?i)locktaskpackages[=:]\s*\[?([^\]\n]*)\]?`)
	lockTaskState    = regexp.MustCompile(`mLockTaskModeState=(\w+)`)
	resumedActivity  = regexp.MustCompile(`(?m)(?:mResumedActivity|ResumedActivity):?\s*ActivityRecord\{\S+ \S+ ([\w.]+)/`)
)

// parseDeviceOwner extracts the device owner package from `dumpsys device_policy`.
// Returns "" when no device owner is set.
func parseDeviceOwner(out string) string {
	idx := strings.Index(out, "Device Owner:")
	if idx < 0 {
		return ""
	}
	section := out[idx+len("Device Owner:"):]
	// The owner block ends at the next unindented line.
	lines := strings.Split(section, "\n")
	var block []string
	for i, line := range lines {
		if i > 0 && line != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}
		block = append(block, line)
	}
	m := ownerPackage.FindStringSubmatch(strings.Join(block, "\n"))
	if m == nil {
		return ""
	}
	return m[1]
}

// parseLockTaskPackages returns every package allowlisted for lock-task mode.
func parseLockTaskPackages(out string) []string {
	var packages []string
	for _, m := range lockTaskPackages.FindAllStringSubmatch(out, -1) {
		packages = append(packages, strings.FieldsFunc(m[1], func(r rune) bool {
			return r == ',' || r == ' '
		})...)
	}
	return packages
}

// parseLockTaskMode reads mLockTaskModeState from `dumpsys activity activities`.
func parseLockTaskMode(out string) domain.HostLockTaskMode {
	m := lockTaskState.FindStringSubmatch(out)
	if m == nil {
		return domain.LockTaskNone
	}
	switch strings.ToUpper(m[1]) {
	case "LOCKED":
		return domain.LockTaskLocked
	case "PINNED":
		return domain.LockTaskPinned
	default:
		return domain.LockTaskNone
	}
}

// parseResumedPackage returns the package of the resumed activity, or "".
func parseResumedPackage(out string) string {
	m := resumedActivity.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[1]
}

func parseSDKLevel(out string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(out))
}

// parseAppOpAllowed reports whether `appops get` shows the op as allowed.
// "No operations." means the default mode, which denies install requests.
func parseAppOpAllowed(out, op string) bool {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, op+":") {
			continue
		}
		mode := strings.TrimSpace(strings.TrimPrefix(line, op+":"))
		return strings.HasPrefix(mode, "allow")
	}
	return false
}

// parseResolved reports whether `cmd package resolve-activity` found a handler.
func parseResolved(out string) bool {
	out = strings.TrimSpace(out)
	if out == "" {
		return false
	}
	return !strings.Contains(out, "No activity found")
}
