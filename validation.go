package meshkeep

import "fmt"

// ValidateName checks a peer display name received during the identity
// handshake against the configured maximum length (nameMaxLen). maxLen
// <= 0 disables the check.
func ValidateName(name string, maxLen int) error {
	if maxLen > 0 && len(name) > maxLen {
		return fmt.Errorf("%w: %d characters exceeds maximum of %d",
			ErrNameTooLong, len(name), maxLen)
	}
	return nil
}
