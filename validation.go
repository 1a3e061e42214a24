package minnow

import "errors"

// ValidatorFlags toggles optional, stricter checks performed by a [Validator].
type ValidatorFlags uint8

const (
	// ValidateEvilBit rejects IPv4 datagrams with the evil bit (RFC 3514) set.
	ValidateEvilBit ValidatorFlags = 1 << iota
	// ValidateMultiErr accumulates every validation error found instead of
	// stopping at the first one.
	ValidateMultiErr
)

// Validator accumulates frame validation errors across one or more collaborating
// wire-format packages (ethernet, arp, ipv4). Its zero value performs single-error,
// non-strict validation.
type Validator struct {
	flags ValidatorFlags
	accum []error
}

// NewValidator returns a Validator configured with the given flags.
func NewValidator(flags ValidatorFlags) Validator {
	return Validator{flags: flags}
}

// Flags returns the flags the Validator was configured with.
func (v *Validator) Flags() ValidatorFlags { return v.flags }

// SetFlags replaces the Validator's flags.
func (v *Validator) SetFlags(flags ValidatorFlags) { v.flags = flags }

// ResetErr clears accumulated errors so the Validator can be reused.
func (v *Validator) ResetErr() {
	v.accum = v.accum[:0]
}

// HasError reports whether any error has been recorded since the last
// ResetErr.
func (v *Validator) HasError() bool { return len(v.accum) != 0 }

// Err returns nil if no errors were accumulated, the single error if only one
// was found, or a joined error if ValidateMultiErr is set and several were found.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	default:
		return errors.Join(v.accum...)
	}
}

// AddError records a validation failure. Unless ValidateMultiErr is set, only
// the first error recorded since the last ResetErr is kept.
func (v *Validator) AddError(err error) {
	if len(v.accum) != 0 && v.flags&ValidateMultiErr == 0 {
		return
	}
	v.accum = append(v.accum, err)
}
