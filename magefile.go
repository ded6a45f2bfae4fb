//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "relaymatrix"

// Default target - build the binary
var Default = Build

// Build builds the relaymatrix binary with the version stamped in.
func Build() error {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	ldflags := "-X main.version=" + version
	if repo := os.Getenv("UPDATE_REPOSITORY"); repo != "" {
		ldflags += " -X relaymatrix/cmd.defaultUpdateRepository=" + repo
	}
	fmt.Printf("🔨 Building %s %s\n", binary, version)
	return sh.RunV("go", "build", "-ldflags", ldflags, "-o", binary, ".")
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm(binary)
}

// Lint namespace for linting commands
type Lint mg.Namespace

// All runs all linters
func (Lint) All() {
	mg.SerialDeps(Lint.Format, Lint.Vet)
}

// Format checks code formatting
func (Lint) Format() error {
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}
	if out != "" {
		return fmt.Errorf("unformatted files:\n%s", out)
	}
	return nil
}

// Vet runs go vet
func (Lint) Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// QA runs formatting, vet and tests in order.
func QA() {
	mg.SerialDeps(Lint.All, Test)
	fmt.Println("✅ QA complete!")
}
