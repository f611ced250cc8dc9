package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/cristianradulescu/fmtorch/internal/logging"
	"github.com/cristianradulescu/fmtorch/internal/server"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"
)

func main() {
	var stdin bool
	var verbose bool

	flag.BoolVar(&stdin, "stdin", false, "Use stdin/stdout for communication")
	flag.BoolVar(&verbose, "verbose", false, "Log outgoing LSP notifications at debug level")
	flag.Parse()

	if stdin {
		log.SetOutput(os.Stderr)
	}
	log.Printf("%s%s Starting formatting LSP server", logging.LogTagLSP, logging.LogTagMain)

	zapConfig := zap.NewProductionConfig()
	if verbose {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("%s%s Failed to build logger: %v", logging.LogTagLSP, logging.LogTagMain, err)
	}
	defer func() { _ = logger.Sync() }()

	stream := jsonrpc2.NewStream(struct {
		io.Reader
		io.Writer
		io.Closer
	}{
		os.Stdin,
		os.Stdout,
		os.Stdin,
	})

	ctx := context.Background()
	conn := jsonrpc2.NewConn(stream)
	log.Printf("%s%s LSP server connection established", logging.LogTagLSP, logging.LogTagMain)

	lspServer := server.New(conn, logger)
	conn.Go(ctx, lspServer.Handler())

	log.Printf("%s%s LSP server is running, waiting for requests...", logging.LogTagLSP, logging.LogTagMain)
	<-conn.Done()

	if err := conn.Err(); err != nil {
		log.Printf("%s%s LSP server stopped with error: %v", logging.LogTagLSP, logging.LogTagMain, err)
	}

	log.Printf("%s%s LSP server shutdown complete", logging.LogTagLSP, logging.LogTagMain)
}
