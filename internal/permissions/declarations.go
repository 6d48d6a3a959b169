package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUndeclaredAction = errors.New("action has no permission declaration")

// Declarer is implemented by every request handler guarded by the Gate.
type Declarer interface {
	HasRequiredPermissions() PermissionSet
}

// ValidateDeclarations fails when any of actions is missing from h's
// declarations or names a permission outside Table. Run it at startup.
func ValidateDeclarations(h Declarer, actions ...string) error {
	set := h.HasRequiredPermissions()

	var missing []string
	for _, action := range actions {
		if _, ok := set[action]; !ok {
			missing = append(missing, action)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrUndeclaredAction, strings.Join(missing, ", "))
	}

	for action, perms := range set {
		for _, p := range perms {
			if _, ok := Lookup(p.String()); !ok {
				return fmt.Errorf("action %q requires unknown permission %q", action, p.String())
			}
		}
	}
	return nil
}
