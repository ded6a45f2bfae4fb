// Package report renders run reports: live console progress, the per-job
// summary table printed at the end of every run, and the detailed JSON or
// YAML report file.
package report
