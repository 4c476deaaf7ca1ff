package objectstore

import "errors"

var (
	// ErrDisabled is returned by uploads when media storage is not configured.
	ErrDisabled = errors.New("objectstore: disabled")

	// ErrUploadFailed wraps any failure of the storage backend during upload.
	ErrUploadFailed = errors.New("objectstore: upload failed")

	// ErrForeignURL is returned when a URL does not belong to this store.
	ErrForeignURL = errors.New("objectstore: url not served by this store")
)
