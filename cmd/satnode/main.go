// Command satnode runs one peer of a simulated satellite-constellation
// mesh: position-aware neighbor discovery, distance-vector routing,
// and hop-by-hop encrypted messaging and image transfer between
// satellites and ground stations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runNode(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "neighbors":
		runNeighbors(os.Args[2:])
	case "routes":
		runRoutes(os.Args[2:])
	case "send":
		runSend(os.Args[2:])
	case "capture-image":
		runCaptureImage(os.Args[2:])
	case "transmit-image":
		runTransmitImage(os.Args[2:])
	case "fail":
		runFail(os.Args[2:])
	case "recover":
		runRecover(os.Args[2:])
	case "local-time":
		runLocalTime(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("satnode %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: satnode <command> [options]")
	fmt.Println()
	fmt.Println("Run a peer:")
	fmt.Println("  run <node_id> <x> <y> <z> <type: 0=satellite, 1=ground> [--config path]")
	fmt.Println()
	fmt.Println("Operator commands (talk to a running peer over its HTTP API):")
	fmt.Println("  status <peer-addr>                         Show node info")
	fmt.Println("  neighbors <peer-addr>                      List current neighbors")
	fmt.Println("  routes <peer-addr>                         Show the routing table")
	fmt.Println("  send <peer-addr> <dst-id> <message>        Send a data packet")
	fmt.Println("  capture-image <peer-addr>                   Synthesize a placeholder image, return its path")
	fmt.Println("  transmit-image <peer-addr> <dst-id> <file>  Send an image end-to-end")
	fmt.Println("  fail <peer-addr>                            Simulate a node failure")
	fmt.Println("  recover <peer-addr>                         Recover a failed node")
	fmt.Println("  local-time <peer-addr>                      Show Berkeley-adjusted local time")
	fmt.Println()
	fmt.Println("  version                                    Show version info")
}

// waitForSignal blocks until SIGINT/SIGTERM, then cancels ctx.
func waitForSignal() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
