package interfaces

import "errors"

// kindError is a sentinel that also matches its parent kind under errors.Is.
type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

// Error taxonomy shared by the digest engine, key engines, encoder and core.
var (
	// ErrInvalidInputLength is the parent of every size mismatch.
	ErrInvalidInputLength = errors.New("invalid input length")

	ErrInvalidCdiLength  error = &kindError{"invalid cdi length", ErrInvalidInputLength}
	ErrInvalidFwidLength error = &kindError{"invalid fwid length", ErrInvalidInputLength}
	ErrInvalidSeedLength error = &kindError{"invalid seed length", ErrInvalidInputLength}
	ErrEmptyLabel        error = &kindError{"empty derivation label", ErrInvalidInputLength}

	// ErrInsecureLabelReuse is returned when the DeviceID and AliasKey labels
	// are equal and the engine is not configured to tolerate it.
	ErrInsecureLabelReuse = errors.New("deviceID and aliasKey labels are equal")

	ErrKeyDerivationFailure = errors.New("key derivation failed")
	ErrSigningFailure       = errors.New("signing failed")
	ErrEncodingFailure      = errors.New("certificate encoding failed")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
)
