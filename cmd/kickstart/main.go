// File: cmd/kickstart/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/kickstart-cli/cmd"
	"github.com/xkilldash9x/kickstart-cli/internal/commerce"
	"github.com/xkilldash9x/kickstart-cli/internal/observability"
)

const panicLogFile = "panic.log"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitPanic   = 2
)

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

// main is the entry point of the application.
func main() {
	// The sentinel: a crash leaves panic.log behind instead of a lost trace.
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		err := cmd.Execute(ctx)
		observability.Sync()
		osExit(exitCode(err))
		return
	}

	// -- Interactive Mode --
	if err := interactive(ctx, os.Stdin, os.Stdout, commerce.NewClientFactory()); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(exitFailure)
	}
}

// exitCode maps a command result to the process status. An interrupt is a
// clean exit.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	default:
		return exitFailure
	}
}

// interactive reads commands line by line until EOF, "exit" or "quit". All
// lines drive the same page client, so a login or a cart filled by one
// command is still there for the next.
func interactive(ctx context.Context, in io.Reader, out io.Writer, factory commerce.ClientFactory) error {
	fmt.Fprintf(out, "kickstart %s. Type a command (e.g. \"install --db-name shop\"), or \"exit\".\n", cmd.Version)
	scanner := bufio.NewScanner(in)

	shared := commerce.NewSharedClientFactory(factory)
	defer func() {
		if err := shared.Close(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintln(os.Stderr, "Error closing page client:", err)
		}
	}()

	for {
		fmt.Fprint(out, "kickstart > ")
		if !scanner.Scan() {
			break // Exit on EOF (Ctrl+D)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, shared, line, out)
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// executeInteractiveCommand runs one line on a fresh command tree so flags
// from one command don't leak into the next.
func executeInteractiveCommand(ctx context.Context, factory commerce.ClientFactory, line string, out io.Writer) {
	rootCmd := cmd.NewRootCommand(factory)
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetOut(out)

	// Capture panics to avoid crashing the interactive session.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Error: Command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// The shell stays open after a failed command.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

// handlePanic is the implementation of the Sentinel for non-interactive mode.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}

	// Ensure logs are flushed before proceeding.
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())

	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
		// If logging fails, print to stderr as a fallback.
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(exitPanic)
		return // Return facilitates testing when osExit is mocked.
	}

	fmt.Fprintf(os.Stderr, "\n----------------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "CRASH DETECTED: %v\n", r)
	fmt.Fprintf(os.Stderr, "Details logged to %s\n", panicLogFile)
	fmt.Fprintf(os.Stderr, "----------------------------------------------------------------\n")
	osExit(exitPanic)
}
