// Package app assembles relaymatrix from its configuration.
//
// InitializeServices loads the matrix, the quarantine registry, the suite
// catalog and the package index, and builds the environment backend:
//
//   - local: a LocalProvider over the content-addressed store, with cases run
//     as process groups by a ProcessLauncher.
//   - docker: a DockerProvider over the moby client, with cases run as
//     containers on the acquisition's network by a ContainerLauncher.
//
// Application.Run then drives the scheduler with the configured options and,
// when asked, keeps the quarantine file under watch for the duration of the
// run.
package app
