package oci

import (
	"errors"
	"fmt"
	"net/http"

	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote/errcode"
)

// Sentinel errors for OCI pack operations.
var (
	// ErrNotFound is returned when a manifest or layer does not exist.
	ErrNotFound = errors.New("oci: not found")

	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("oci: unauthorized")

	// ErrForbidden is returned when access is denied.
	ErrForbidden = errors.New("oci: forbidden")

	// ErrInvalidReference is returned when a URL is not oci://<registry>/<repo>:<tag>.
	ErrInvalidReference = errors.New("oci: invalid reference")

	// ErrManifestInvalid is returned when a manifest cannot be parsed.
	ErrManifestInvalid = errors.New("oci: invalid manifest")

	// ErrNoPackLayer is returned when a manifest has no pack layer.
	ErrNoPackLayer = errors.New("oci: manifest has no pack layer")

	// ErrDigestMismatch is returned when content does not match its digest.
	ErrDigestMismatch = errors.New("oci: digest mismatch")

	// ErrTooLarge is returned when a layer exceeds the configured limit.
	ErrTooLarge = errors.New("oci: layer too large")
)

// mapError maps ORAS errors to the sentinels above.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	return err
}
