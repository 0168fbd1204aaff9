package domain

import "fmt"

// GetBit reports whether the status bit at position is set. Position must not
// exceed MaxStatusBit; versions with a narrower bit range are enforced by the
// store before delegating here.
func GetBit(status uint8, position uint8) (bool, error) {
	if position > MaxStatusBit {
		return false, fmt.Errorf("%w: %d", ErrPositionOutOfRange, position)
	}
	return status&(1<<position) != 0, nil
}

// SetBit returns status with exactly the bit at position set or cleared and
// every other bit unchanged. Setting an already-set bit or clearing an
// already-clear bit is a successful no-op.
func SetBit(status uint8, position uint8, value bool) (uint8, error) {
	if position > MaxStatusBit {
		return status, fmt.Errorf("%w: %d", ErrPositionOutOfRange, position)
	}
	if value {
		return status | 1<<position, nil
	}
	return status &^ (1 << position), nil
}
