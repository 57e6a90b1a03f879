package loader

import "errors"

// ErrManifest is returned when a team directory cannot be read as a team.
var ErrManifest = errors.New("invalid team directory")
