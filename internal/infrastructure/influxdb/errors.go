package influxdb

import "errors"

// Errors returned by the client. Asynchronous write failures go to the
// SetOnError callback instead.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
