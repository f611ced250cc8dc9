package providers

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/logging"
	"github.com/cristianradulescu/fmtorch/internal/utils"
	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type syncedDocument struct {
	version int32
	text    string
}

// LanguageServerClient talks to a downstream language server and keeps the
// documents it formats in sync with it.
type LanguageServerClient struct {
	conn    jsonrpc2.Conn
	server  protocol.Server
	rootDir string

	mu          sync.Mutex
	initialized bool
	documents   map[protocol.DocumentURI]syncedDocument
}

func NewLanguageServerClient(conn jsonrpc2.Conn, logger *zap.Logger, rootDir string) *LanguageServerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LanguageServerClient{
		conn:      conn,
		server:    protocol.ServerDispatcher(conn, logger),
		rootDir:   rootDir,
		documents: make(map[protocol.DocumentURI]syncedDocument),
	}
}

// prepare runs the initialize handshake once and sends the current content
// of doc. c.mu must be held.
func (c *LanguageServerClient) prepare(ctx context.Context, doc formatting.TextDocument) error {
	if !c.initialized {
		_, err := c.server.Initialize(ctx, &protocol.InitializeParams{
			ProcessID:    int32(os.Getpid()),
			ClientInfo:   &protocol.ClientInfo{Name: config.Name, Version: config.Version},
			RootURI:      uri.File(c.rootDir),
			Capabilities: protocol.ClientCapabilities{},
		})
		if err != nil {
			return fmt.Errorf("initialize failed: %w", err)
		}
		if err := c.server.Initialized(ctx, &protocol.InitializedParams{}); err != nil {
			return fmt.Errorf("initialized notification failed: %w", err)
		}
		c.initialized = true
	}

	docURI := doc.URI()
	text := doc.Text()
	version := doc.Version()

	synced, open := c.documents[docURI]
	switch {
	case !open:
		err := c.server.DidOpen(ctx, &protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        docURI,
				LanguageID: protocol.LanguageIdentifier(doc.LanguageID()),
				Version:    version,
				Text:       text,
			},
		})
		if err != nil {
			return fmt.Errorf("didOpen failed: %w", err)
		}
	case synced.version != version || synced.text != text:
		err := c.server.DidChange(ctx, &protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: docURI},
				Version:                version,
			},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{
				{Range: utils.FullRange(synced.text), Text: text},
			},
		})
		if err != nil {
			return fmt.Errorf("didChange failed: %w", err)
		}
	default:
		return nil
	}

	c.documents[docURI] = syncedDocument{version: version, text: text}
	return nil
}

func (c *LanguageServerClient) formatting(ctx context.Context, doc formatting.TextDocument, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(ctx, doc); err != nil {
		return nil, err
	}
	return c.server.Formatting(ctx, &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI()},
		Options:      options,
	})
}

func (c *LanguageServerClient) rangeFormatting(ctx context.Context, doc formatting.TextDocument, rng protocol.Range, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(ctx, doc); err != nil {
		return nil, err
	}
	return c.server.RangeFormatting(ctx, &protocol.DocumentRangeFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI()},
		Range:        rng,
		Options:      options,
	})
}

func (c *LanguageServerClient) onTypeFormatting(ctx context.Context, doc formatting.TextDocument, position protocol.Position, ch string, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(ctx, doc); err != nil {
		return nil, err
	}
	return c.server.OnTypeFormatting(ctx, &protocol.DocumentOnTypeFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI()},
		Position:     position,
		Ch:           ch,
		Options:      options,
	})
}

// Forget sends didClose for a document the downstream server knows about.
func (c *LanguageServerClient) Forget(ctx context.Context, docURI protocol.DocumentURI) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, open := c.documents[docURI]; !open {
		return nil
	}
	delete(c.documents, docURI)

	return c.server.DidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
	})
}

// Close shuts the downstream server down and closes the connection.
func (c *LanguageServerClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.initialized {
		err = multierr.Append(err, c.server.Shutdown(ctx))
		err = multierr.Append(err, c.server.Exit(ctx))
	}
	return multierr.Append(err, c.conn.Close())
}

// LanguageServer serves document formatting requests through a downstream
// language server.
type LanguageServer struct {
	base
	client *LanguageServerClient
}

func NewLanguageServer(providerId string, providerConfig config.FormattingProvider, client *LanguageServerClient) *LanguageServer {
	return &LanguageServer{base: newBase(providerId, providerConfig, providerConfig.Path), client: client}
}

func (p *LanguageServer) ProvideDocumentFormattingEdits(ctx context.Context, doc formatting.TextDocument, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	return p.client.formatting(ctx, doc, options)
}

// LanguageServerRange serves range formatting requests.
type LanguageServerRange struct {
	base
	client *LanguageServerClient
}

func NewLanguageServerRange(providerId string, providerConfig config.FormattingProvider, client *LanguageServerClient) *LanguageServerRange {
	return &LanguageServerRange{base: newBase(providerId, providerConfig, providerConfig.Path), client: client}
}

func (p *LanguageServerRange) ProvideDocumentRangeFormattingEdits(ctx context.Context, doc formatting.TextDocument, rng protocol.Range, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	return p.client.rangeFormatting(ctx, doc, rng, options)
}

// LanguageServerOnType serves on-type formatting requests.
type LanguageServerOnType struct {
	base
	client   *LanguageServerClient
	triggers []string
}

func NewLanguageServerOnType(providerId string, providerConfig config.FormattingProvider, client *LanguageServerClient) *LanguageServerOnType {
	return &LanguageServerOnType{
		base:     newBase(providerId, providerConfig, providerConfig.Path),
		client:   client,
		triggers: providerConfig.Format.OnType,
	}
}

func (p *LanguageServerOnType) TriggerCharacters() []string {
	return p.triggers
}

func (p *LanguageServerOnType) ProvideOnTypeFormattingEdits(ctx context.Context, doc formatting.TextDocument, position protocol.Position, ch string, options protocol.FormattingOptions) ([]protocol.TextEdit, error) {
	return p.client.onTypeFormatting(ctx, doc, position, ch, options)
}

// DownstreamHandler answers requests a downstream server sends to its client
// and logs its messages.
func DownstreamHandler(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case protocol.MethodWindowLogMessage, protocol.MethodWindowShowMessage:
		var params protocol.LogMessageParams
		if err := json.Unmarshal(req.Params(), &params); err == nil {
			log.Printf("%s%s Downstream: %s", logging.LogTagProvider, logging.LogTagLSP, params.Message)
		}
	default:
		log.Printf("%s%s Downstream request ignored: %s", logging.LogTagProvider, logging.LogTagLSP, req.Method())
	}

	return reply(ctx, nil, nil)
}

type processStream struct {
	io.ReadCloser
	io.WriteCloser
	cmd *exec.Cmd
}

func (s *processStream) Close() error {
	return multierr.Combine(s.WriteCloser.Close(), s.ReadCloser.Close(), s.cmd.Wait())
}

// DialLanguageServer starts the configured language server, locally or with
// `docker exec` inside its container, and connects to its stdio.
func DialLanguageServer(ctx context.Context, providerConfig config.FormattingProvider) (jsonrpc2.Conn, error) {
	var cmd *exec.Cmd
	if strings.TrimSpace(providerConfig.Container) != "" {
		args := append([]string{"exec", "-i", providerConfig.Container, providerConfig.Path}, providerConfig.Args...)
		cmd = exec.Command("docker", args...)
	} else {
		cmd = exec.Command(providerConfig.Path, providerConfig.Args...)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("could not open stdin of %s: %w", providerConfig.Path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("could not open stdout of %s: %w", providerConfig.Path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start %s: %w", providerConfig.Path, err)
	}

	log.Printf("%s%s Started language server %s (pid %d)", logging.LogTagProvider, logging.LogTagLSP, providerConfig.Path, cmd.Process.Pid)

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(&processStream{ReadCloser: stdout, WriteCloser: stdin, cmd: cmd}))
	conn.Go(ctx, DownstreamHandler)

	return conn, nil
}
