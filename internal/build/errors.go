package build

import "errors"

// Sentinel errors classifying the step a build failed in. They are always
// wrapped with the phase or plugin context at the call site.
var (
	ErrSourcing  = errors.New("sitegraph: sourcing failed")
	ErrPhase     = errors.New("sitegraph: build phase failed")
	ErrPostBuild = errors.New("sitegraph: post-build failed")
)
