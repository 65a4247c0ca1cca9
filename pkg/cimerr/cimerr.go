// Package cimerr defines the typed error taxonomy shared by every CIM
// component, so callers can pattern-match with errors.As instead of
// string-matching messages.
package cimerr

import "fmt"

// StorageKind classifies a StorageError for caller-side retry decisions.
type StorageKind int

const (
	Transient StorageKind = iota
	Unavailable
	QuotaExceeded
	PermissionDenied
	Fatal
)

func (k StorageKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Unavailable:
		return "unavailable"
	case QuotaExceeded:
		return "quota_exceeded"
	case PermissionDenied:
		return "permission_denied"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// NotFoundError reports a missing CID or key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.Key) }

// CidMismatchError reports that recomputing a CID over retrieved bytes
// disagreed with the CID the caller asked for.
type CidMismatchError struct {
	Expected string
	Actual   string
}

func (e *CidMismatchError) Error() string {
	return fmt.Sprintf("cid mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// FormatMismatchError reports a magic-byte verification failure.
type FormatMismatchError struct {
	Format string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("format mismatch: content does not match %s magic bytes", e.Format)
}

// InvalidContentError reports a decoder rejecting a payload.
type InvalidContentError struct {
	Detail string
}

func (e *InvalidContentError) Error() string { return fmt.Sprintf("invalid content: %s", e.Detail) }

// CodecUnknownError reports a lookup miss in the codec registry.
type CodecUnknownError struct {
	Code uint64
}

func (e *CodecUnknownError) Error() string {
	return fmt.Sprintf("codec unknown: 0x%x", e.Code)
}

// CodecConflictError reports a duplicate registration disagreement.
type CodecConflictError struct {
	Code uint64
}

func (e *CodecConflictError) Error() string {
	return fmt.Sprintf("codec conflict: 0x%x already registered with a different handler", e.Code)
}

// ChainValidationError reports chain linkage or CID mismatch at a sequence.
type ChainValidationError struct {
	Sequence uint64
	Expected string
	Actual   string
}

func (e *ChainValidationError) Error() string {
	return fmt.Sprintf("chain validation failed at sequence %d: expected %s, got %s",
		e.Sequence, e.Expected, e.Actual)
}

// ChainLoadError reports a missing item during backward chain traversal.
type ChainLoadError struct {
	HeadCID string
	Detail  string
}

func (e *ChainLoadError) Error() string {
	return fmt.Sprintf("chain load failed from head %s: %s", e.HeadCID, e.Detail)
}

// CanonicalizationError reports a canonical-bytes hook failure.
type CanonicalizationError struct {
	Detail string
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("canonicalization failed: %s", e.Detail)
}

// StorageError reports a backend failure, classified by Kind.
type StorageError struct {
	Kind   StorageKind
	Detail string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %s", e.Kind, e.Detail)
}

// DecryptionError reports an AEAD authentication failure.
type DecryptionError struct {
	KeyIDHash string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: authentication tag invalid for key %s", e.KeyIDHash)
}

// KeyRotationError reports a mid-rotation inconsistency.
type KeyRotationError struct {
	Detail string
}

func (e *KeyRotationError) Error() string {
	return fmt.Sprintf("key rotation inconsistency: %s", e.Detail)
}

// CancelledError reports cancellation honored by a blocking operation.
type CancelledError struct {
	Op string
}

func (e *CancelledError) Error() string { return fmt.Sprintf("cancelled: %s", e.Op) }
