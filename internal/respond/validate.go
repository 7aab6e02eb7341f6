package respond

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

// ErrUngrounded is returned when a generated response references a known
// scheme that is not part of the request's grounding set.
var ErrUngrounded = errors.New("response references scheme outside grounding set")

// ValidateGrounding scans the response for known scheme names that are
// absent from the grounding set. knownNames is the full catalog of stored
// scheme names; any of them surfacing in the text without being grounded
// fails the check. Matching is case-insensitive.
func ValidateGrounding(response string, grounding []scheme.Scheme, knownNames []string) error {
	lower := strings.ToLower(response)

	grounded := make(map[string]struct{}, len(grounding))
	for _, sc := range grounding {
		grounded[strings.ToLower(sc.Name)] = struct{}{}
	}

	for _, name := range knownNames {
		needle := strings.ToLower(name)
		if needle == "" {
			continue
		}
		if _, ok := grounded[needle]; ok {
			continue
		}
		if strings.Contains(lower, needle) {
			return fmt.Errorf("%w: %q", ErrUngrounded, name)
		}
	}
	return nil
}
