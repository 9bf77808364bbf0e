package plugin

import "errors"

// Host lifecycle errors.
var (
	ErrNilManifest   = errors.New("nil manifest")
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	ErrNotLoaded     = errors.New("plugin not loaded")
	ErrHostClosed    = errors.New("plugin host closed")
	ErrNoFunction    = errors.New("no such function")
)
