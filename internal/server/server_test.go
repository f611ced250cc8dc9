package server_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/server"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"
)

const testConfig = `{
	"editor": {"tabSize": 4, "insertSpaces": true, "formatOnType": true, "formatOnPaste": true},
	"formattingProviders": {
		"commas": {"enabled": true, "type": "builtin", "rule": "comma-spacing", "languages": ["go"], "format": {"enabled": true}},
		"braces": {"enabled": true, "type": "builtin", "rule": "brace-indent", "languages": ["go"], "format": {"enabled": true, "onType": ["}"]}},
		"disabled": {"enabled": false, "type": "command", "path": "gofmt"}
	}
}`

func pos(line, character uint32) protocol.Position {
	return protocol.Position{Line: line, Character: character}
}

func rng(sl, sc, el, ec uint32) protocol.Range {
	return protocol.Range{Start: pos(sl, sc), End: pos(el, ec)}
}

type clientRecorder struct {
	mu     sync.Mutex
	shown  []protocol.ShowMessageParams
	logged []protocol.LogMessageParams
}

func (c *clientRecorder) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch req.Method() {
	case protocol.MethodWindowShowMessage:
		var params protocol.ShowMessageParams
		_ = json.Unmarshal(req.Params(), &params)
		c.shown = append(c.shown, params)
	case protocol.MethodWindowLogMessage:
		var params protocol.LogMessageParams
		_ = json.Unmarshal(req.Params(), &params)
		c.logged = append(c.logged, params)
	}

	return reply(ctx, nil, nil)
}

func (c *clientRecorder) shownMessages() []protocol.ShowMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ShowMessageParams(nil), c.shown...)
}

func (c *clientRecorder) loggedMessages() []protocol.LogMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.LogMessageParams(nil), c.logged...)
}

type testSession struct {
	server   protocol.Server
	recorder *clientRecorder
	root     string
}

func startServer(t *testing.T, configContent string) *testSession {
	t.Helper()

	root := t.TempDir()
	if configContent != "" {
		if err := os.WriteFile(filepath.Join(root, config.ConfigFileName), []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to create test config file: %v", err)
		}
	}

	ctx := context.Background()
	serverSide, clientSide := net.Pipe()

	serverConn := jsonrpc2.NewConn(jsonrpc2.NewStream(serverSide))
	lspServer := server.New(serverConn, zap.NewNop())
	serverConn.Go(ctx, lspServer.Handler())

	recorder := &clientRecorder{}
	clientConn := jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	clientConn.Go(ctx, recorder.handle)

	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	return &testSession{
		server:   protocol.ServerDispatcher(clientConn, zap.NewNop()),
		recorder: recorder,
		root:     root,
	}
}

func (s *testSession) initialize(t *testing.T) *protocol.InitializeResult {
	t.Helper()

	result, err := s.server.Initialize(context.Background(), &protocol.InitializeParams{
		RootURI:    uri.File(s.root),
		ClientInfo: &protocol.ClientInfo{Name: "test", Version: "1"},
	})
	require.NoError(t, err)
	require.NoError(t, s.server.Initialized(context.Background(), &protocol.InitializedParams{}))

	return result
}

func (s *testSession) open(t *testing.T, name string, languageID string, text string) protocol.DocumentURI {
	t.Helper()

	docURI := uri.File(filepath.Join(s.root, name))
	err := s.server.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        docURI,
			LanguageID: protocol.LanguageIdentifier(languageID),
			Version:    1,
			Text:       text,
		},
	})
	require.NoError(t, err)

	return docURI
}

var options = protocol.FormattingOptions{TabSize: 4, InsertSpaces: true}

func TestServer_InitializeAdvertisesConfiguredFormatters(t *testing.T) {
	session := startServer(t, testConfig)

	result := session.initialize(t)

	assert.Equal(t, config.Name, result.ServerInfo.Name)
	assert.Equal(t, config.Version, result.ServerInfo.Version)
	assert.Equal(t, true, result.Capabilities.DocumentFormattingProvider)
	assert.Equal(t, true, result.Capabilities.DocumentRangeFormattingProvider)
	require.NotNil(t, result.Capabilities.DocumentOnTypeFormattingProvider)
	assert.Equal(t, "}", result.Capabilities.DocumentOnTypeFormattingProvider.FirstTriggerCharacter)
	require.NotNil(t, result.Capabilities.ExecuteCommandProvider)
	assert.Equal(t, []string{
		"fmtorch/showConfig",
		"fmtorch/listFormatters",
		"fmtorch/format",
		"fmtorch/formatPasted",
	}, result.Capabilities.ExecuteCommandProvider.Commands)
}

func TestServer_InitializeWithoutConfig(t *testing.T) {
	session := startServer(t, "")

	result := session.initialize(t)

	assert.NotEqual(t, true, result.Capabilities.DocumentFormattingProvider)
	assert.Nil(t, result.Capabilities.DocumentOnTypeFormattingProvider)

	shown := session.recorder.shownMessages()
	require.Len(t, shown, 1)
	assert.Equal(t, protocol.MessageTypeWarning, shown[0].Type)
	assert.Contains(t, shown[0].Message, "config file not found")
}

func TestServer_DocumentFormatting(t *testing.T) {
	session := startServer(t, testConfig)
	session.initialize(t)
	docURI := session.open(t, "main.go", "go", "foo(a,b)\n")

	edits, err := session.server.Formatting(context.Background(), &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Options:      options,
	})
	require.NoError(t, err)

	assert.Equal(t, []protocol.TextEdit{{Range: rng(0, 6, 0, 6), NewText: " "}}, edits)

	logged := session.recorder.loggedMessages()
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0].Message, "Made 1 formatting edit on line 1")
}

func TestServer_RangeFormatting(t *testing.T) {
	session := startServer(t, testConfig)
	session.initialize(t)
	docURI := session.open(t, "main.go", "go", "a,b\nc,d\n")

	edits, err := session.server.RangeFormatting(context.Background(), &protocol.DocumentRangeFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Range:        rng(1, 0, 1, 3),
		Options:      options,
	})
	require.NoError(t, err)

	assert.Equal(t, []protocol.TextEdit{{Range: rng(1, 2, 1, 2), NewText: " "}}, edits)
}

func TestServer_OnTypeFormatting(t *testing.T) {
	session := startServer(t, testConfig)
	session.initialize(t)
	docURI := session.open(t, "main.go", "go", "if x {\n    }")

	edits, err := session.server.OnTypeFormatting(context.Background(), &protocol.DocumentOnTypeFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Position:     pos(1, 5),
		Ch:           "}",
		Options:      options,
	})
	require.NoError(t, err)

	assert.Equal(t, []protocol.TextEdit{{Range: rng(1, 0, 1, 4), NewText: ""}}, edits)
}

func TestServer_FormattingFollowsDidChange(t *testing.T) {
	session := startServer(t, testConfig)
	session.initialize(t)
	docURI := session.open(t, "main.go", "go", "a\n")

	err := session.server.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: docURI}, Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "x,y\n"}},
	})
	require.NoError(t, err)

	edits, err := session.server.Formatting(context.Background(), &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Options:      options,
	})
	require.NoError(t, err)

	assert.Equal(t, []protocol.TextEdit{{Range: rng(0, 2, 0, 2), NewText: " "}}, edits)
}

func TestServer_NoProviderIsReported(t *testing.T) {
	session := startServer(t, testConfig)
	session.initialize(t)
	docURI := session.open(t, "index.php", "php", "<?php foo(a,b);")

	edits, err := session.server.Formatting(context.Background(), &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
		Options:      options,
	})
	require.NoError(t, err)

	assert.Empty(t, edits)
	shown := session.recorder.shownMessages()
	require.Len(t, shown, 1)
	assert.Equal(t, protocol.MessageTypeInfo, shown[0].Type)
	assert.Equal(t, "There is no document formatter for 'php'-files installed.", shown[0].Message)
}

func TestServer_ExecuteCommand(t *testing.T) {
	session := startServer(t, testConfig)
	session.initialize(t)
	docURI := session.open(t, "main.go", "go", "x(a,b)\nf(c,d)")
	ctx := context.Background()

	t.Run("listFormatters", func(t *testing.T) {
		result, err := session.server.ExecuteCommand(ctx, &protocol.ExecuteCommandParams{
			Command:   server.GetFullLspCommandName(server.LspCommandNameListFormatters),
			Arguments: []interface{}{docURI},
		})
		require.NoError(t, err)

		expected := "Available Formatters for: " + string(docURI) + "\n" +
			"Range Formatters\n" +
			"  comma-spacing\n" +
			"Document Formatters\n" +
			"  none\n"
		assert.Equal(t, expected, result)
	})

	t.Run("formatPasted", func(t *testing.T) {
		result, err := session.server.ExecuteCommand(ctx, &protocol.ExecuteCommandParams{
			Command:   server.GetFullLspCommandName(server.LspCommandNameFormatPasted),
			Arguments: []interface{}{docURI, rng(1, 0, 1, 6)},
		})
		require.NoError(t, err)

		var edits []protocol.TextEdit
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &edits))
		assert.Equal(t, []protocol.TextEdit{{Range: rng(1, 4, 1, 4), NewText: " "}}, edits)
	})

	t.Run("format selection", func(t *testing.T) {
		result, err := session.server.ExecuteCommand(ctx, &protocol.ExecuteCommandParams{
			Command:   server.GetFullLspCommandName(server.LspCommandNameFormat),
			Arguments: []interface{}{docURI, rng(0, 0, 0, 6)},
		})
		require.NoError(t, err)

		var edits []protocol.TextEdit
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &edits))
		assert.Equal(t, []protocol.TextEdit{{Range: rng(0, 4, 0, 4), NewText: " "}}, edits)
	})

	t.Run("showConfig", func(t *testing.T) {
		_, err := session.server.ExecuteCommand(ctx, &protocol.ExecuteCommandParams{
			Command: server.GetFullLspCommandName(server.LspCommandNameShowConfig),
		})
		require.NoError(t, err)

		shown := session.recorder.shownMessages()
		require.NotEmpty(t, shown)
		assert.Contains(t, shown[len(shown)-1].Message, "Current configuration:")
		assert.Contains(t, shown[len(shown)-1].Message, "comma-spacing")
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := session.server.ExecuteCommand(ctx, &protocol.ExecuteCommandParams{Command: "fmtorch/nope"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown command")
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := session.server.ExecuteCommand(ctx, &protocol.ExecuteCommandParams{
			Command: server.GetFullLspCommandName(server.LspCommandNameFormatPasted),
		})
		require.Error(t, err)
	})
}

func TestServer_ShutdownAndExit(t *testing.T) {
	session := startServer(t, testConfig)
	session.initialize(t)
	docURI := session.open(t, "main.go", "go", "a,b")

	require.NoError(t, session.server.DidClose(context.Background(), &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
	}))
	require.NoError(t, session.server.Shutdown(context.Background()))
	require.NoError(t, session.server.Exit(context.Background()))
}

func TestGetFullLspCommandName(t *testing.T) {
	assert.Equal(t, "fmtorch/showConfig", server.GetFullLspCommandName(server.LspCommandNameShowConfig))
	assert.Equal(t, "fmtorch/listFormatters", server.GetFullLspCommandName(server.LspCommandNameListFormatters))
}
