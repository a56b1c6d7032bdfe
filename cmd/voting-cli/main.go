package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"votesync/cmd/internal/bootstrap"
	"votesync/config"
	"votesync/observability/logging"
	"votesync/wallet"
)

var configPath = "votesync.toml"

// openSession loads configuration and boots a session. Tests replace it.
var openSession = func(ctx context.Context, path string, stderr io.Writer) (*bootstrap.App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(logging.Options{
		Service:     "voting-cli",
		Environment: cfg.Logging.Environment,
		Level:       logging.ParseLevel("warn"),
		Output:      stderr,
	})
	app, err := bootstrap.Open(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil && !errors.Is(err, wallet.ErrNoWallet) {
		fmt.Fprintf(stderr, "Warning: session degraded: %v\n", err)
	}
	return app, nil
}

// loadConfig is used by commands that need configuration but no session.
var loadConfig = config.Load

// signalContext bounds long-running commands. Tests replace it.
var signalContext = func() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func applyGlobalFlags(args []string) ([]string, error) {
	if env := strings.TrimSpace(os.Getenv("VOTESYNC_CONFIG")); env != "" {
		configPath = env
	}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-config":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("Error: %s requires a value", arg)
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "status":
		return runStatusCommand(args[1:], stdout, stderr)
	case "proposals":
		return runProposalsCommand(args[1:], stdout, stderr)
	case "winner":
		return runWinnerCommand(args[1:], stdout, stderr)
	case "voter":
		return runVoterCommand(args[1:], stdout, stderr)
	case "add-voter":
		return runAddVoterCommand(args[1:], stdout, stderr)
	case "propose":
		return runProposeCommand(args[1:], stdout, stderr)
	case "vote":
		return runVoteCommand(args[1:], stdout, stderr)
	case "advance":
		return runAdvanceCommand(args[1:], stdout, stderr)
	case "tally":
		return runTallyCommand(args[1:], stdout, stderr)
	case "network":
		return runNetworkCommand(args[1:], stdout, stderr)
	case "watch":
		return runWatchCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "Usage: voting-cli [--config path] <command> [args]")
	fmt.Fprintln(buf, "Commands:")
	fmt.Fprintln(buf, "  status               Show the synchronized session")
	fmt.Fprintln(buf, "  proposals            List proposals")
	fmt.Fprintln(buf, "  winner               Show the winning proposal")
	fmt.Fprintln(buf, "  voter <address>      Show a voter record")
	fmt.Fprintln(buf, "  add-voter <address>  Register a voter (owner only)")
	fmt.Fprintln(buf, "  propose <text>       Submit a proposal")
	fmt.Fprintln(buf, "  vote <id>            Vote for a proposal")
	fmt.Fprintln(buf, "  advance <phase|next> Move the workflow to the given phase (owner only)")
	fmt.Fprintln(buf, "  tally                Tally the votes (owner only)")
	fmt.Fprintln(buf, "  network <id>         Describe a network id")
	fmt.Fprintln(buf, "  watch                Stream session events until interrupted")
	return buf.String()
}

func printJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func expectArgs(name string, args []string, n int, stderr io.Writer) bool {
	if len(args) != n {
		fmt.Fprintf(stderr, "Error: %s expects %d argument(s)\n", name, n)
		fmt.Fprintln(stderr, usage())
		return false
	}
	return true
}

// withSession boots a session, runs fn and tears the session down.
func withSession(stderr io.Writer, fn func(ctx context.Context, app *bootstrap.App) int) int {
	ctx, cancel := signalContext()
	defer cancel()
	app, err := openSession(ctx, configPath, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			fmt.Fprintf(stderr, "Warning: close session: %v\n", err)
		}
	}()
	return fn(ctx, app)
}
