package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/specialistvlad/opcalc/internal/app"
	"github.com/specialistvlad/opcalc/internal/cli"
	"github.com/specialistvlad/opcalc/internal/isolate"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if isolate.IsWorker() {
		os.Exit(app.RunWorker(context.Background(), os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

func newStreams(input string) (cli.Streams, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return cli.Streams{In: strings.NewReader(input), Out: out, Err: &bytes.Buffer{}}, out
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag prints usage and returns without running anything.
	streams, out := newStreams("")

	// --- Act ---
	err := run(context.Background(), streams, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error for help")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause argument parsing to fail.
	streams, _ := newStreams("")

	// --- Act ---
	err := run(context.Background(), streams, []string{"--this-is-not-a-valid-flag"})

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_OneShot(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	streams, out := newStreams("")
	args := []string{"--log-file", "", "--plugins", t.TempDir(), "--env-file", "", "3", "2", "add"}

	// --- Act ---
	err := run(context.Background(), streams, args)

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), "The result of 3 add 2 is 5")
}
