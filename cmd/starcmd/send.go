package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/starcmd/starcmd/internal/ipc"
)

// handleSend writes one raw wire message from stdin, for hook scripts that
// build their own JSON. The payload is validated locally first.
func handleSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	socket := fs.String("socket", "", "Socket path (overrides config)")
	fs.Usage = func() {
		fmt.Println("Usage: starcmd send [--socket path] < message.json")
		fmt.Println()
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	data, err := io.ReadAll(io.LimitReader(os.Stdin, ipc.DefaultMaxMessageBytes+1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read stdin: %v\n", err)
		os.Exit(1)
	}
	data = bytes.TrimSpace(data)
	if _, err := ipc.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	resp, err := ipc.RoundTrip(ctx, socketPath(*socket), data)
	if err != nil {
		exitOnClientError(err)
	}
	if len(resp) > 0 {
		fmt.Println(string(resp))
	}
}
