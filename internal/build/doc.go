// Package build runs a site build against the node store: sourcing, then the
// build phases in order, then the post-build plugin API. Every entry point
// (build command, develop rebuilds, tests) goes through Pipeline.Run.
package build
