package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/fatih/color"

	"github.com/orbitmesh/satnode/internal/config"
	"github.com/orbitmesh/satnode/internal/peer"
)

// runNode implements `satnode run <node_id> <x> <y> <z> <kind> [--config path]`.
func runNode(args []string) {
	positional, flags := splitFlags(args)
	if len(positional) < 5 {
		color.Red("usage: satnode run <node_id> <x> <y> <z> <type: 0=satellite, 1=ground> [--config path]")
		os.Exit(1)
	}

	id, err := strconv.ParseUint(positional[0], 10, 16)
	if err != nil {
		color.Red("invalid node_id: %v", err)
		os.Exit(1)
	}
	x := mustFloat(positional[1], "x")
	y := mustFloat(positional[2], "y")
	z := mustFloat(positional[3], "z")
	isGround := mustNodeKind(positional[4])

	cfg := config.Defaults(uint16(id), x, y, z, isGround)

	if path, ok := flags["config"]; ok {
		loaded, err := config.Load(path)
		if err != nil {
			color.Red("failed to load config: %v", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if err := config.Validate(&cfg); err != nil {
		color.Red("invalid config: %v", err)
		os.Exit(1)
	}

	logger := slog.Default().With("node_id", cfg.Node.ID)
	p, err := peer.New(cfg, logger)
	if err != nil {
		color.Red("failed to initialize peer: %v", err)
		os.Exit(1)
	}

	color.Green("satnode %d listening on %s:%d", cfg.Node.ID, cfg.Network.ListenHost, cfg.Network.BasePort+int(cfg.Node.ID))

	ctx, cancel := waitForSignal()
	defer cancel()

	if err := p.Start(ctx); err != nil {
		color.Red("peer stopped with error: %v", err)
		os.Exit(1)
	}
}

func mustFloat(s, name string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		color.Red("invalid %s: %v", name, err)
		os.Exit(1)
	}
	return v
}

// mustNodeKind parses the numeric node type of spec §6: 0 = satellite,
// 1 = ground station.
func mustNodeKind(s string) bool {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil || v > 1 {
		color.Red("invalid type %q: want 0 (satellite) or 1 (ground)", s)
		os.Exit(1)
	}
	return v == 1
}

// splitFlags separates positional arguments from "--flag value" pairs.
func splitFlags(args []string) (positional []string, flags map[string]string) {
	flags = make(map[string]string)
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) > 2 && a[:2] == "--" {
			name := a[2:]
			if i+1 < len(args) {
				flags[name] = args[i+1]
				i++
			}
			continue
		}
		positional = append(positional, a)
	}
	return positional, flags
}
