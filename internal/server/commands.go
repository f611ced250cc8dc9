package server

import (
	"context"
	"fmt"
	"log"

	"github.com/cristianradulescu/fmtorch/internal/logging"
	"github.com/cristianradulescu/fmtorch/internal/orchestrator"
	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

func (s *Server) handleExecuteCommand(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.ExecuteCommandParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling executeCommand params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err))
	}

	log.Printf("%s%s Executing command: %s", logging.LogTagLSP, logging.LogTagServer, params.Command)

	switch params.Command {
	case GetFullLspCommandName(LspCommandNameShowConfig):
		return s.handleShowConfigCommand(ctx, reply)
	case GetFullLspCommandName(LspCommandNameListFormatters):
		return s.handleListFormattersCommand(ctx, reply, params.Arguments)
	case GetFullLspCommandName(LspCommandNameFormat):
		return s.handleFormatCommand(ctx, reply, params.Arguments)
	case GetFullLspCommandName(LspCommandNameFormatPasted):
		return s.handleFormatPastedCommand(ctx, reply, params.Arguments)
	default:
		return reply(ctx, nil, fmt.Errorf("unknown command: %s", params.Command))
	}
}

func (s *Server) handleShowConfigCommand(ctx context.Context, reply jsonrpc2.Replier) error {
	s.showWindowMessage(ctx, protocol.MessageTypeInfo, fmt.Sprintf("Current configuration: %s", s.serverConfig.RawData))

	return reply(ctx, nil, nil)
}

// handleListFormattersCommand expects the document URI as first argument.
func (s *Server) handleListFormattersCommand(ctx context.Context, reply jsonrpc2.Replier, args []interface{}) error {
	var docURI protocol.DocumentURI
	if err := decodeArgument(args, 0, &docURI); err != nil {
		return reply(ctx, nil, err)
	}

	doc, err := s.document(docURI)
	if err != nil {
		return reply(ctx, nil, err)
	}

	listing := orchestrator.Inspect(s.registry, docURI, doc.LanguageID())
	s.showWindowMessage(ctx, protocol.MessageTypeInfo, listing)

	return reply(ctx, listing, nil)
}

// handleFormatCommand expects the document URI and an optional selection.
// An empty or missing selection formats the whole document.
func (s *Server) handleFormatCommand(ctx context.Context, reply jsonrpc2.Replier, args []interface{}) error {
	var docURI protocol.DocumentURI
	if err := decodeArgument(args, 0, &docURI); err != nil {
		return reply(ctx, nil, err)
	}

	opened := s.session(docURI)
	if opened == nil {
		return reply(ctx, nil, fmt.Errorf("document %s is not open", docURI))
	}

	if len(args) > 1 {
		var selection protocol.Range
		if err := decodeArgument(args, 1, &selection); err != nil {
			return reply(ctx, nil, err)
		}
		opened.doc.SetSelections(selection)
	}

	go func() {
		result, err := s.engine.Format(ctx, opened.doc, opened.doc.FormattingOptions())
		_ = reply(ctx, s.formattingEdits(ctx, result, err), nil)
	}()

	return nil
}

// handleFormatPastedCommand expects the document URI and the pasted range.
func (s *Server) handleFormatPastedCommand(ctx context.Context, reply jsonrpc2.Replier, args []interface{}) error {
	var docURI protocol.DocumentURI
	var pasted protocol.Range
	if err := decodeArgument(args, 0, &docURI); err != nil {
		return reply(ctx, nil, err)
	}
	if err := decodeArgument(args, 1, &pasted); err != nil {
		return reply(ctx, nil, err)
	}

	opened := s.session(docURI)
	if opened == nil || !opened.onPaste.IsArmed() {
		return reply(ctx, []protocol.TextEdit{}, nil)
	}

	opened.doc.SetCursor(pasted.End)
	go func() {
		result, err := opened.onPaste.Trigger(ctx, pasted)
		_ = reply(ctx, s.formattingEdits(ctx, result, err), nil)
	}()

	return nil
}

func decodeArgument(args []interface{}, index int, v interface{}) error {
	if index >= len(args) {
		return fmt.Errorf("%w: missing argument %d", jsonrpc2.ErrInvalidParams, index)
	}

	raw, err := json.Marshal(args[index])
	if err != nil {
		return fmt.Errorf("%w: %v", jsonrpc2.ErrInvalidParams, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: argument %d: %v", jsonrpc2.ErrInvalidParams, index, err)
	}

	return nil
}
