package mail

import "regexp"

// MaxAddressLength is the longest address accepted by IsValidAddress.
const MaxAddressLength = 254

var reAddress = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// IsValidAddress reports whether s has the shape of a deliverable address.
//
// The check is syntactic only. Nothing is resolved over the network.
func IsValidAddress(s string) bool {
	if s == "" || len(s) > MaxAddressLength {
		return false
	}

	return reAddress.MatchString(s)
}
