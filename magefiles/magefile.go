//go:build mage

// Package main provides build targets for polyref using Mage.
//
// Usage:
//
//	mage build          Compile the polyref binary to bin/
//	mage test           Run all tests
//	mage testLive       Run tests including Postgres and MySQL (needs POLYREF_TEST_*_DSN)
//	mage golden         Regenerate golden files
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install polyref to GOPATH/bin
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "polyref"
	binaryDir  = "bin"
	cmdDir     = "./cmd/polyref"
	versionVar = "github.com/roach88/polyref/internal/cli.Version"
)

// Default target when mage runs without arguments.
var Default = Build

func ldflags() string {
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || version == "" {
		version = "dev"
	}
	return fmt.Sprintf("-X %s=%s", versionVar, version)
}

// Build compiles the polyref binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Install installs polyref to GOPATH/bin.
func Install() error {
	return sh.RunV("go", "install", "-ldflags", ldflags(), cmdDir)
}

// Test runs all tests. Live server tests skip without their DSNs.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// TestLive runs the schema and shadow tests against the configured server
// databases.
func TestLive() error {
	for _, env := range []string{"POLYREF_TEST_POSTGRES_DSN", "POLYREF_TEST_MYSQL_DSN"} {
		if os.Getenv(env) == "" {
			return fmt.Errorf("%s is not set", env)
		}
	}
	return sh.RunV("go", "test", "-count=1", "./internal/schema/...", "./internal/shadow/...", "./internal/migrate/...")
}

// Golden regenerates golden files for the packages that have them.
func Golden() error {
	return sh.RunV("go", "test", "./internal/shadow/...", "./internal/relation/...", "./internal/harness/...", "-update")
}

// Lint runs golangci-lint.
func Lint() error {
	mg.Deps(Vet)
	return sh.RunV("golangci-lint", "run", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	return os.RemoveAll(binaryDir)
}
