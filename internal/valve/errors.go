package valve

import "errors"

// ErrNotBound is returned when a facade is invoked before it has a
// bound valve identity. This is a configuration error on the caller's
// side, not a cloud failure.
var ErrNotBound = errors.New("valve: facade has no bound valve id")
