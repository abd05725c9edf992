package assets

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetNotExist is returned when no asset is registered under an id.
	ErrAssetNotExist = errors.New("assets: asset does not exist")

	// ErrPackageNotExist is returned when a pack id names a pack that was
	// never imported or declared.
	ErrPackageNotExist = errors.New("assets: asset package does not exist")

	// ErrNotAnImage is returned when an image is requested for an asset whose
	// MIME type is not image/*.
	ErrNotAnImage = errors.New("assets: asset is not an image")

	// ErrEmptyAsset is returned when an asset has no representation to
	// convert from.
	ErrEmptyAsset = errors.New("assets: asset has no representations")

	// ErrPackNameMismatch is returned when a fetched pack reports a name
	// other than the one it was declared under.
	ErrPackNameMismatch = errors.New("assets: pack name mismatch")

	// ErrFetchFailed matches every *FetchError.
	ErrFetchFailed = errors.New("assets: fetch failed")

	// ErrNotImplemented is returned for representation kinds or operations
	// this build does not provide.
	ErrNotImplemented = errors.New("assets: not implemented")

	// ErrInvalidID is returned for malformed identifiers.
	ErrInvalidID = errors.New("assets: invalid asset id")
)

// FetchError reports a failed retrieval of URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("assets: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}
