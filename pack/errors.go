package pack

import "errors"

// Sentinel errors for pack operations.
var (
	// ErrInvalidArchive is returned when archive bytes cannot be parsed.
	ErrInvalidArchive = errors.New("pack: invalid archive")

	// ErrEntryNotExist is returned when an entry id is not in the pack.
	ErrEntryNotExist = errors.New("pack: entry does not exist")

	// ErrHashMismatch is returned when entry content does not match its digest.
	ErrHashMismatch = errors.New("pack: hash verification failed")

	// ErrDecompression is returned when an entry fails to decompress.
	ErrDecompression = errors.New("pack: decompression failed")

	// ErrEntryTooLarge is returned when an entry exceeds the configured size limit.
	ErrEntryTooLarge = errors.New("pack: entry too large")

	// ErrInvalidName is returned when a pack name or entry id is unusable.
	ErrInvalidName = errors.New("pack: invalid name")
)
