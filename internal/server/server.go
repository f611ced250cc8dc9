package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cristianradulescu/fmtorch/internal/config"
	"github.com/cristianradulescu/fmtorch/internal/document"
	"github.com/cristianradulescu/fmtorch/internal/event"
	"github.com/cristianradulescu/fmtorch/internal/formatter"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/logging"
	"github.com/cristianradulescu/fmtorch/internal/orchestrator"
	"github.com/cristianradulescu/fmtorch/internal/providers"
	"github.com/cristianradulescu/fmtorch/internal/telemetry"
	"github.com/cristianradulescu/fmtorch/internal/utils"
	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/pkg/xcontext"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// Server represents the Language Server Protocol (LSP) server
type Server struct {
	conn         jsonrpc2.Conn
	client       protocol.Client
	logger       *zap.Logger
	serverConfig *config.Config

	registry      *formatting.Registry
	engine        *orchestrator.Formatter
	factory       *providers.Factory
	registrations []event.Disposable

	// Open documents with their on-type and on-paste controllers
	sessionMu sync.RWMutex
	sessions  map[protocol.DocumentURI]*session
}

type session struct {
	doc     *document.Document
	onType  *orchestrator.OnTypeController
	onPaste *orchestrator.OnPasteController
}

func (s *session) dispose() {
	s.onType.Dispose()
	s.onPaste.Dispose()
}

// New creates a new LSP server instance
func New(conn jsonrpc2.Conn, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		conn:         conn,
		client:       protocol.ClientDispatcher(conn, logger),
		logger:       logger,
		serverConfig: &config.Config{},
		registry:     formatting.NewRegistry(),
		sessions:     make(map[protocol.DocumentURI]*session),
	}
	selector := formatting.NewSelector(s.registry, telemetry.NewZapReporter(logger))
	s.engine = orchestrator.NewFormatter(selector, formatter.NewMinimizer(), s)

	return s
}

// Handler wraps Handle with $/cancelRequest support.
func (s *Server) Handler() jsonrpc2.Handler {
	return protocol.CancelHandler(s.Handle)
}

func (s *Server) Handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	log.Printf("%s%s Received request: %s", logging.LogTagLSP, logging.LogTagServer, req.Method())

	switch req.Method() {
	case protocol.MethodInitialize:
		return s.handleInitialize(ctx, reply, req)
	case protocol.MethodInitialized:
		return s.handleInitialized(ctx, reply, req)
	case protocol.MethodWorkspaceExecuteCommand:
		return s.handleExecuteCommand(ctx, reply, req)
	case protocol.MethodTextDocumentDidOpen:
		return s.handleDidOpen(ctx, reply, req)
	case protocol.MethodTextDocumentDidChange:
		return s.handleDidChange(ctx, reply, req)
	case protocol.MethodTextDocumentDidClose:
		return s.handleDidClose(ctx, reply, req)
	case protocol.MethodTextDocumentFormatting:
		return s.handleDocumentFormatting(ctx, reply, req)
	case protocol.MethodTextDocumentRangeFormatting:
		return s.handleRangeFormatting(ctx, reply, req)
	case protocol.MethodTextDocumentOnTypeFormatting:
		return s.handleOnTypeFormatting(ctx, reply, req)
	case protocol.MethodShutdown:
		return s.handleShutdown(ctx, reply, req)
	case protocol.MethodExit:
		return s.handleExit(ctx, reply, req)
	default:
		log.Printf("%s%s Unhandled method: %s", logging.LogTagLSP, logging.LogTagServer, req.Method())
		return reply(ctx, nil, nil)
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	log.Printf("%s%s Handling initialize request", logging.LogTagLSP, logging.LogTagServer)

	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling initialize params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err))
	}

	if params.ClientInfo != nil {
		log.Printf("%s%s Client info: name=%s, version=%s", logging.LogTagLSP, logging.LogTagServer, params.ClientInfo.Name, params.ClientInfo.Version)
	}

	if !s.serverConfig.IsInitialized() {
		projectRoot := projectRoot(params)

		serverConfig, err := s.serverConfig.LoadConfig(projectRoot)
		if err != nil {
			log.Printf("%s%s No config: %v", logging.LogTagLSP, logging.LogTagServer, err)
			s.showWindowMessage(ctx, protocol.MessageTypeWarning, fmt.Sprintf("%s: %v", config.Name, err))
			serverConfig.Editor = config.DefaultEditorConfig()
		}
		s.serverConfig = serverConfig

		s.factory = providers.NewFactory(projectRoot, s.logger)
		for _, provider := range s.factory.LoadFormattingProviders(ctx, s.serverConfig) {
			log.Printf("%s%s Registered formatter %s", logging.LogTagLSP, logging.LogTagServer, provider.Name())
			s.registrations = append(s.registrations, s.registry.Register(provider))
		}
	}

	resp := protocol.InitializeResult{
		Capabilities: serverCapabilities(s.registry, s.serverConfig.Editor),
		ServerInfo:   serverInfo(),
	}

	return reply(ctx, resp, nil)
}

// projectRoot determines the project root from the workspace folder, the
// root URI or the closest config file above the working directory.
func projectRoot(params protocol.InitializeParams) string {
	if len(params.WorkspaceFolders) > 0 && params.WorkspaceFolders[0].URI != "" {
		return utils.URIToPath(protocol.DocumentURI(params.WorkspaceFolders[0].URI))
	}
	if params.RootURI != "" {
		return utils.URIToPath(params.RootURI)
	}
	if cwd, err := os.Getwd(); err == nil {
		return utils.FindProjectRoot(filepath.Join(cwd, config.ConfigFileName))
	}
	return ""
}

func (s *Server) handleInitialized(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	log.Printf("%s%s Client initialized successfully", logging.LogTagLSP, logging.LogTagServer)

	return reply(ctx, nil, nil)
}

func (s *Server) handleDidOpen(_ context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)
		return nil
	}

	item := params.TextDocument
	doc := document.New(item.URI, string(item.LanguageID), item.Text, s.documentOptions())
	opened := &session{
		doc:     doc,
		onType:  orchestrator.NewOnTypeController(doc, s.engine),
		onPaste: orchestrator.NewOnPasteController(doc, s.engine),
	}

	s.sessionMu.Lock()
	previous := s.sessions[item.URI]
	s.sessions[item.URI] = opened
	s.sessionMu.Unlock()

	if previous != nil {
		previous.dispose()
	}

	return nil
}

func (s *Server) handleDidChange(_ context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)
		return nil
	}

	opened := s.session(params.TextDocument.URI)
	if opened == nil || len(params.ContentChanges) == 0 {
		return nil
	}

	lastChange := params.ContentChanges[len(params.ContentChanges)-1]
	opened.doc.SetText(lastChange.Text)

	return nil
}

func (s *Server) handleDidClose(ctx context.Context, _ jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling %s params: %v", logging.LogTagLSP, logging.LogTagServer, req.Method(), err)
		return nil
	}

	s.sessionMu.Lock()
	closed := s.sessions[params.TextDocument.URI]
	delete(s.sessions, params.TextDocument.URI)
	s.sessionMu.Unlock()

	if closed != nil {
		closed.dispose()
	}
	if s.factory != nil {
		if err := s.factory.Forget(ctx, params.TextDocument.URI); err != nil {
			log.Printf("%s%s Failed to close %s downstream: %v", logging.LogTagLSP, logging.LogTagServer, params.TextDocument.URI, err)
		}
	}

	return nil
}

func (s *Server) handleDocumentFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling document formatting params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err))
	}

	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return reply(ctx, nil, err)
	}

	go func() {
		result, err := s.engine.FormatDocument(ctx, doc, params.Options)
		_ = reply(ctx, s.formattingEdits(ctx, result, err), nil)
	}()

	return nil
}

func (s *Server) handleRangeFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentRangeFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling range formatting params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err))
	}

	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return reply(ctx, nil, err)
	}

	go func() {
		result, err := s.engine.FormatRange(ctx, doc, orchestrator.Request{
			Kind:    orchestrator.ExplicitRange,
			Range:   params.Range,
			Options: params.Options,
		})
		_ = reply(ctx, s.formattingEdits(ctx, result, err), nil)
	}()

	return nil
}

func (s *Server) handleOnTypeFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentOnTypeFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling on-type formatting params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err))
	}

	opened := s.session(params.TextDocument.URI)
	if opened == nil || !opened.doc.FormatOnType() {
		return reply(ctx, []protocol.TextEdit{}, nil)
	}

	opened.doc.SetCursor(params.Position)
	go func() {
		result, err := opened.onType.Trigger(ctx, params.Ch)
		_ = reply(ctx, s.formattingEdits(ctx, result, err), nil)
	}()

	return nil
}

// formattingEdits turns a run outcome into the edits sent back to the
// client and reports failures to the user.
func (s *Server) formattingEdits(ctx context.Context, result *orchestrator.Result, err error) []protocol.TextEdit {
	switch {
	case orchestrator.IsNoProvider(err):
		s.showWindowMessage(ctx, protocol.MessageTypeInfo, err.Error())
	case err != nil:
		log.Printf("%s%s %v", logging.LogTagLSP, logging.LogTagFormat, err)
		s.showWindowMessage(ctx, protocol.MessageTypeError, err.Error())
	}

	if result == nil {
		return []protocol.TextEdit{}
	}
	return utils.EnsureTextEditsArray(result.Edits)
}

func (s *Server) handleShutdown(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
	log.Printf("%s%s Performing cleanup before shutdown", logging.LogTagLSP, logging.LogTagServer)

	s.sessionMu.Lock()
	for docURI, opened := range s.sessions {
		opened.dispose()
		delete(s.sessions, docURI)
	}
	s.sessionMu.Unlock()

	s.registrations = event.DisposeAll(s.registrations)
	if s.factory != nil {
		if err := s.factory.Close(ctx); err != nil {
			log.Printf("%s%s Failed to stop downstream servers: %v", logging.LogTagLSP, logging.LogTagServer, err)
		}
	}

	return reply(ctx, nil, nil)
}

func (s *Server) handleExit(_ context.Context, _ jsonrpc2.Replier, _ jsonrpc2.Request) error {
	log.Printf("%s%s Exiting server", logging.LogTagLSP, logging.LogTagServer)

	return s.conn.Close()
}

// Announce implements orchestrator.Notifier.
func (s *Server) Announce(docURI protocol.DocumentURI, message string) {
	params := &protocol.LogMessageParams{Type: protocol.MessageTypeInfo, Message: fmt.Sprintf("%s: %s", docURI, message)}
	if err := s.client.LogMessage(context.Background(), params); err != nil {
		log.Printf("%s%s Failed to send log message: %v", logging.LogTagLSP, logging.LogTagServer, err)
	}
}

func (s *Server) showWindowMessage(ctx context.Context, messageType protocol.MessageType, message string) {
	params := &protocol.ShowMessageParams{Type: messageType, Message: message}
	if err := s.client.ShowMessage(xcontext.Detach(ctx), params); err != nil {
		log.Printf("%s%s Failed to send window message: %v", logging.LogTagLSP, logging.LogTagServer, err)
	}
}

func (s *Server) documentOptions() document.Options {
	editor := s.serverConfig.Editor
	if editor.TabSize == 0 {
		editor = config.DefaultEditorConfig()
	}
	return document.Options{
		TabSize:       editor.TabSize,
		InsertSpaces:  editor.InsertSpaces,
		FormatOnType:  editor.FormatOnType,
		FormatOnPaste: editor.FormatOnPaste,
	}
}

func (s *Server) session(docURI protocol.DocumentURI) *session {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.sessions[docURI]
}

// document returns the open document for docURI, or a detached copy read
// from disk when the client never opened it.
func (s *Server) document(docURI protocol.DocumentURI) (*document.Document, error) {
	if opened := s.session(docURI); opened != nil {
		return opened.doc, nil
	}

	filePath := utils.URIToPath(docURI)
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	languageID := strings.TrimPrefix(filepath.Ext(filePath), ".")
	return document.New(docURI, languageID, string(content), s.documentOptions()), nil
}
