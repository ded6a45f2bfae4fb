// Package suite runs a catalog of test cases against one acquired
// environment.
//
// The catalog is a YAML list of cases. Each case names the command to run,
// its arguments and extra variables as Go templates (with the sprig function
// map) rendered against the environment, for example:
//
//	cases:
//	  - name: transfer
//	    command: "{{ .Executables.hermes }}"
//	    args: ["--config", "{{ .WorkDir }}/config.toml", "tx", "ft-transfer"]
//	  - name: ordered-channel-relay
//	    requires: [ordered]
//	    driver: gotest
//	    command: go
//	    args: ["test", "-json", "./e2e/ordered/..."]
//
// A filter picks the cases a job runs. Cases that require a feature the job
// does not carry are reported SKIP. Selected cases run with bounded
// concurrency; results are sorted by name.
//
// Launchers execute a rendered case: ProcessLauncher as a local process group,
// ContainerLauncher as a container on the acquisition's docker network.
// Drivers judge the outcome: exec by exit status, gotest by parsing the
// `go test -json` event stream.
package suite
