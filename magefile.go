//go:build mage

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "unilog-service"
	mainPkg = "./cmd/server"
)

/* Env vars
RUN - passed to go test -run.
COUNT - passed to go test -count. Use 1 to bypass the test cache.
*/

// Default target
var Default = Build.Server

type Build mg.Namespace

// compiles the server into bin/
func (Build) Server(ctx context.Context) error {
	mg.CtxDeps(ctx, Docs)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-trimpath", "-o", filepath.Join(binDir, binName), mainPkg)
}

// regenerates the swagger docs from the handler annotations
func Docs() error {
	if _, err := sh.Output("swag", "--version"); err != nil {
		fmt.Println("swag not installed, keeping docs/ as is")
		return nil
	}
	return sh.RunV("swag", "init", "-g", "cmd/server/main.go", "-o", "docs")
}

type Tests mg.Namespace

// runs unit tests
func (Tests) Unit(ctx context.Context) error {
	return gotest(ctx, "./...")
}

// runs unit tests with the race detector
func (Tests) Race(ctx context.Context) error {
	return gotest(ctx, "-race", "./...")
}

func gotest(_ context.Context, args ...string) error {
	base := []string{"test"}
	if run, ok := os.LookupEnv("RUN"); ok {
		base = append(base, "-run", run)
	}
	if count, ok := os.LookupEnv("COUNT"); ok {
		base = append(base, "-count", count)
	}
	return sh.RunV("go", append(base, args...)...)
}

// runs go vet
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// removes build output
func Clean() error {
	return sh.Rm(binDir)
}
