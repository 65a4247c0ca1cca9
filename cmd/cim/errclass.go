package main

import (
	"errors"

	"github.com/stackdump/cim/pkg/cimerr"
)

type errClass int

const (
	classUsage errClass = iota
	classNotFound
	classIntegrity
	classBackend
)

// classifyErr maps the typed error taxonomy in pkg/cimerr onto the
// four exit-code buckets base §6 names for an embedding CLI.
func classifyErr(err error) errClass {
	var notFound *cimerr.NotFoundError
	var cidMismatch *cimerr.CidMismatchError
	var formatMismatch *cimerr.FormatMismatchError
	var decryption *cimerr.DecryptionError
	var chainValidation *cimerr.ChainValidationError
	var chainLoad *cimerr.ChainLoadError
	var storage *cimerr.StorageError

	switch {
	case errors.As(err, &notFound):
		return classNotFound
	case errors.As(err, &cidMismatch), errors.As(err, &formatMismatch),
		errors.As(err, &decryption), errors.As(err, &chainValidation):
		return classIntegrity
	case errors.As(err, &chainLoad):
		return classIntegrity
	case errors.As(err, &storage):
		return classBackend
	default:
		return classUsage
	}
}
