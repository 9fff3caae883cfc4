package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const defaultAddr = "http://127.0.0.1:8765"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"activate":   cmdActivate,
	"deactivate": cmdDeactivate,
	"start":      cmdStart,
	"stop":       cmdStop,
	"status":     cmdStatus,
	"check":      cmdCheck,
	"pages":      cmdPages,
	"detect":     cmdDetect,
}

// errUsage asks run to print usage and exit 2.
var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}
	name := args[0]
	if name == "-h" || name == "--help" || name == "help" {
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", name)
		printUsage(stderr)
		return 2
	}

	addr := os.Getenv("SLOTHUNTER_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	c := &cli{daemon: newDaemonClient(addr), out: stdout}

	if err := cmd(ctx, c, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(stderr)
			return 2
		}
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "SlotHunter CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  slothunter activate KEY")
	fmt.Fprintln(w, "  slothunter deactivate")
	fmt.Fprintln(w, "  slothunter start [--interval N] [--url U] [--sound=bool]")
	fmt.Fprintln(w, "  slothunter stop")
	fmt.Fprintln(w, "  slothunter status")
	fmt.Fprintln(w, "  slothunter check")
	fmt.Fprintln(w, "  slothunter pages")
	fmt.Fprintln(w, "  slothunter detect [--mode pattern|structural|both] FILE|URL")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The daemon address is taken from SLOTHUNTER_ADDR (default "+defaultAddr+").")
}
