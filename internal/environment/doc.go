// Package environment resolves environment references to isolated, ready to
// run environments.
//
// A reference names one or more packages joined by "+", for example
// "gaia@v8.0.0+wasmd@v0.30.0". Packages are looked up in a content-addressed
// package index (YAML) listing each package's executables with their sha256,
// auxiliary toolchain references and variables. The resolved set has a
// digest, so the same reference always yields the same environment for an
// unchanged index.
//
// Two backends implement Provider:
//
//   - LocalProvider verifies executables in a file-system store and gives each
//     acquisition its own directory with a bin/ of symlinks and a private HOME.
//   - DockerProvider requires digest-pinned images and gives each acquisition
//     its own labelled network and volume, torn down by label on release.
//
// Use With to get the scoped contract: the environment is released on every
// exit path, including cancellation of the caller's context.
//
// Acquisition failures are *UnavailableError values matching
// ErrEnvironmentUnavailable. Transient ones may be retried.
package environment
