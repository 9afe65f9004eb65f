//go:build mage

// Package main provides build targets for quill using Mage.
//
// Usage:
//
//	mage build    Compile quill to bin/ with version ldflags
//	mage test     Run all tests
//	mage vet      Run go vet
//	mage install  Install quill to GOPATH/bin
//	mage clean    Remove build artifacts
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "quill"
	binaryDir  = "bin"
	cmdDir     = "./cmd/quill"
	versionPkg = "github.com/example/quill/internal/version"
)

// go-sqlite3 needs cgo.
var buildEnv = map[string]string{"CGO_ENABLED": "1"}

func ldflags() string {
	commit, err := sh.Output("git", "rev-parse", "HEAD")
	if err != nil || commit == "" {
		commit = "unknown"
	}
	return strings.Join([]string{
		fmt.Sprintf("-X %s.Commit=%s", versionPkg, commit),
		fmt.Sprintf("-X %s.BuildTime=%s", versionPkg, time.Now().UTC().Format(time.RFC3339)),
	}, " ")
}

// Build compiles the quill binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunWithV(buildEnv, "go", "build", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests with the race detector.
func Test() error {
	return sh.RunWithV(buildEnv, "go", "test", "-race", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output("go", "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}

// Clean removes build artifacts.
func Clean() error {
	return os.RemoveAll(binaryDir)
}
