package dcpx

import "errors"

var (
	ErrEngineRequired      = errors.New("engine bridge must be specified")
	ErrNameRequired        = errors.New("connection name must be specified")
	ErrMaxVbucketsRequired = errors.New("max vbuckets must be specified")
)
