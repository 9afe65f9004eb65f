package app

import "fmt"

// guardError tags a failed guard's reason with the sentinel callers match on.
func guardError(sentinel, reason error) error {
	return fmt.Errorf("%w: %s", sentinel, reason.Error())
}
