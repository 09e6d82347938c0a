package models

import "errors"

// Cluster errors
var (
	ErrClusterNotFound       = errors.New("cluster not found")
	ErrClusterBrokerRequired = errors.New("cluster broker list is required")
	ErrTailingDisabled       = errors.New("tailing is disabled for this cluster")
)

// Offset log decoding errors
var (
	ErrUnknownKeyVersion = errors.New("unknown offset key version")
	ErrShortBuffer       = errors.New("buffer too short")
	ErrInvalidPartition  = errors.New("invalid partition")
)

// Cache errors
var (
	ErrUnknownCache = errors.New("unknown cache name")
	ErrMalformedKey = errors.New("malformed replicated key")
)
