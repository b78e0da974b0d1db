package backend

import "errors"

// ErrNotSupported is returned by capability methods a given backend
// variant does not implement (spec §4.3: "may be unimplemented for some
// backends (reported as 'not supported')").
var ErrNotSupported = errors.New("not supported by this backend")
