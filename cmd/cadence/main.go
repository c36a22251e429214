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

	"golang.org/x/term"

	"github.com/xkilldash9x/cadence/cmd"
	"github.com/xkilldash9x/cadence/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables so tests can stub side effects.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
			} else {
				osExit(1)
			}
		}
		return
	}

	prompt := term.IsTerminal(int(os.Stdin.Fd()))
	if err := runInteractive(ctx, os.Stdin, os.Stdout, prompt); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// runInteractive reads lines from in. A plain line is typed back with
// "deliver"; a line starting with ':' runs the rest as a cadence command.
// The banner and prompt are only written when prompt is set.
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, prompt bool) error {
	if prompt {
		fmt.Fprintln(out, "cadence interactive mode. Type a message, :help for commands, :quit to exit.")
	}
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "cadence > ")
		}
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == ":quit" || line == ":exit":
			if prompt {
				fmt.Fprintln(out, "Exiting cadence.")
			}
			return nil
		}

		executeInteractiveCommand(ctx, interactiveArgs(line), out)
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func interactiveArgs(line string) []string {
	if rest, ok := strings.CutPrefix(line, ":"); ok {
		return strings.Fields(rest)
	}
	return []string{"deliver", line}
}

// executeInteractiveCommand runs one command on a fresh command tree, so flags
// from one line do not leak into the next.
func executeInteractiveCommand(ctx context.Context, args []string, out io.Writer) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Error: command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}

// handlePanic records a crash in panicLogFile before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "cadence crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}
