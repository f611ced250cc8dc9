package orchestrator_test

import (
	"context"
	"testing"

	"github.com/cristianradulescu/fmtorch/internal/document"
	"github.com/cristianradulescu/fmtorch/internal/event"
	"github.com/cristianradulescu/fmtorch/internal/formatting"
	"github.com/cristianradulescu/fmtorch/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func indentOnType(edits ...protocol.TextEdit) *onTypeProvider {
	return &onTypeProvider{
		fakeBase: fakeBase{id: "indent", languages: []string{"go"}},
		triggers: []string{"}"},
		respond: func(context.Context, formatting.TextDocument, protocol.Position, string) ([]protocol.TextEdit, error) {
			return edits, nil
		},
	}
}

// blockingOnType blocks its first call until release is closed.
func blockingOnType(started chan<- struct{}, release <-chan struct{}, edits ...protocol.TextEdit) *onTypeProvider {
	p := &onTypeProvider{
		fakeBase: fakeBase{id: "slow", languages: []string{"go"}},
		triggers: []string{"}"},
	}
	p.respond = func(context.Context, formatting.TextDocument, protocol.Position, string) ([]protocol.TextEdit, error) {
		if p.Calls() == 1 {
			close(started)
			<-release
		}
		return edits, nil
	}
	return p
}

func TestOnType_FormatsAfterTriggerCharacter(t *testing.T) {
	provider := indentOnType(insert(0, 0, "\t"))
	f := newFixture(provider)
	doc := newDoc("", document.Options{FormatOnType: true})
	controller := orchestrator.NewOnTypeController(doc, f.formatter)
	defer controller.Dispose()

	require.Equal(t, orchestrator.Armed, controller.State())

	require.NoError(t, doc.Type("a"))
	controller.Wait()
	assert.Equal(t, 0, provider.Calls())

	require.NoError(t, doc.Type("}"))
	controller.Wait()

	assert.Equal(t, 1, provider.Calls())
	assert.Equal(t, "\ta}", doc.Text())
	assert.Equal(t, []string{"Made 1 formatting edit on line 1"}, f.notifier.Messages())
	assert.Equal(t, 3, doc.UndoDepth())
	assert.Equal(t, orchestrator.Armed, controller.State())
}

func TestOnType_DisabledOrMultipleSelections(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		provider := indentOnType(insert(0, 0, "\t"))
		f := newFixture(provider)
		doc := newDoc("", document.Options{})
		controller := orchestrator.NewOnTypeController(doc, f.formatter)
		defer controller.Dispose()

		require.NoError(t, doc.Type("}"))
		controller.Wait()

		assert.Equal(t, orchestrator.Idle, controller.State())
		assert.Equal(t, 0, provider.Calls())
		assert.Equal(t, "}", doc.Text())
	})

	t.Run("multiple selections", func(t *testing.T) {
		provider := indentOnType(insert(0, 0, "\t"))
		f := newFixture(provider)
		doc := newDoc("ab", document.Options{FormatOnType: true})
		controller := orchestrator.NewOnTypeController(doc, f.formatter)
		defer controller.Dispose()

		doc.SetSelections(rng(0, 0, 0, 0), rng(0, 2, 0, 2))
		require.NoError(t, doc.Type("}"))
		controller.Wait()

		assert.Equal(t, 0, provider.Calls())
		assert.Equal(t, "}ab}", doc.Text())

		result, err := controller.Trigger(context.Background(), "}")
		assert.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestOnType_DiscardsEditsWhenTriggerLineChanges(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := blockingOnType(started, release, insert(1, 0, "\t"))
	f := newFixture(provider)
	doc := newDoc("func f() {\n", document.Options{FormatOnType: true})
	doc.SetCursor(pos(1, 0))
	controller := orchestrator.NewOnTypeController(doc, f.formatter)
	defer controller.Dispose()

	require.NoError(t, doc.Type("}"))
	<-started
	require.NoError(t, doc.Edit(protocol.TextEdit{Range: rng(1, 0, 1, 0), NewText: " "}))
	close(release)
	controller.Wait()

	assert.Equal(t, "func f() {\n }", doc.Text())
	assert.Empty(t, f.notifier.Messages())
	assert.Equal(t, orchestrator.Armed, controller.State())
}

func TestOnType_DiscardsEditsOnFlush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := blockingOnType(started, release, insert(0, 0, "\t"))
	f := newFixture(provider)
	doc := newDoc("", document.Options{FormatOnType: true})
	controller := orchestrator.NewOnTypeController(doc, f.formatter)
	defer controller.Dispose()

	require.NoError(t, doc.Type("}"))
	<-started
	doc.SetText("reloaded")
	close(release)
	controller.Wait()

	assert.Equal(t, "reloaded", doc.Text())
}

func TestOnType_AppliesWhenOnlyLaterLinesChange(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := blockingOnType(started, release, insert(0, 0, "\t"))
	f := newFixture(provider)
	doc := newDoc("\nrest", document.Options{FormatOnType: true})
	controller := orchestrator.NewOnTypeController(doc, f.formatter)
	defer controller.Dispose()

	require.NoError(t, doc.Type("}"))
	<-started
	require.NoError(t, doc.Edit(protocol.TextEdit{Range: rng(1, 4, 1, 4), NewText: "!"}))
	close(release)
	controller.Wait()

	assert.Equal(t, "\t}\nrest!", doc.Text())
	assert.Equal(t, []string{"Made 1 formatting edit on line 1"}, f.notifier.Messages())
}

func TestOnType_NewerTriggerSupersedesOlder(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := blockingOnType(started, release, insert(0, 0, "\t"))
	f := newFixture(provider)
	doc := newDoc("}", document.Options{})
	doc.SetCursor(pos(0, 1))
	controller := orchestrator.NewOnTypeController(doc, f.formatter)
	defer controller.Dispose()

	type outcome struct {
		result *orchestrator.Result
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := controller.Trigger(context.Background(), "}")
		first <- outcome{result, err}
	}()
	<-started

	result, err := controller.Trigger(context.Background(), "}")
	require.NoError(t, err)
	assert.Len(t, result.Edits, 1)

	close(release)
	older := <-first
	require.NoError(t, older.err)
	assert.True(t, older.result.Cancelled)
	assert.Empty(t, older.result.Edits)

	assert.Equal(t, "\t}", doc.Text())
	assert.Equal(t, 2, provider.Calls())
}

func TestOnType_NoProviderForCharacter(t *testing.T) {
	f := newFixture(indentOnType(insert(0, 0, "\t")))
	doc := newDoc("", document.Options{FormatOnType: true})
	controller := orchestrator.NewOnTypeController(doc, f.formatter)
	defer controller.Dispose()

	result, err := controller.Trigger(context.Background(), ";")

	assert.Nil(t, result)
	assert.True(t, orchestrator.IsNoProvider(err))
	assert.Equal(t, "There is no on-type formatter for 'go'-files installed.", err.Error())
}

func TestOnType_Reconfiguration(t *testing.T) {
	f := newFixture()
	doc := newDoc("", document.Options{})
	controller := orchestrator.NewOnTypeController(doc, f.formatter)

	assert.Equal(t, orchestrator.Idle, controller.State())

	doc.SetOptions(document.Options{TabSize: 4, FormatOnType: true})
	assert.Equal(t, orchestrator.Idle, controller.State())

	provider := indentOnType(insert(0, 0, "\t"))
	registration := f.registry.Register(provider)
	assert.Equal(t, orchestrator.Armed, controller.State())

	doc.SetLanguage("php")
	assert.Equal(t, orchestrator.Idle, controller.State())

	doc.SetLanguage("go")
	assert.Equal(t, orchestrator.Armed, controller.State())

	registration.Dispose()
	assert.Equal(t, orchestrator.Idle, controller.State())

	f.registry.Register(provider)
	assert.Equal(t, orchestrator.Armed, controller.State())

	controller.Dispose()
	assert.Equal(t, orchestrator.Idle, controller.State())

	require.NoError(t, doc.Type("}"))
	controller.Wait()
	assert.Equal(t, 0, provider.Calls())
}

func TestOnTypeState_String(t *testing.T) {
	assert.Equal(t, "idle", orchestrator.Idle.String())
	assert.Equal(t, "armed", orchestrator.Armed.String())
	assert.Equal(t, "computing", orchestrator.Computing.String())
}

// flushingEditor replaces the document content while a listener is still
// being registered.
type flushingEditor struct {
	*document.Document
}

func (e flushingEditor) OnDidChangeContent(fn func(event.ContentChangeEvent)) event.Disposable {
	handle := e.Document.OnDidChangeContent(fn)
	fn(event.ContentChangeEvent{IsFlush: true, Version: e.Version()})
	return handle
}

func TestOnType_FlushDuringListenerRegistration(t *testing.T) {
	provider := indentOnType(insert(0, 0, "\t"))
	f := newFixture(provider)
	doc := newDoc("}", document.Options{FormatOnType: true})
	controller := orchestrator.NewOnTypeController(flushingEditor{doc}, f.formatter)
	defer controller.Dispose()

	doc.SetSelections(rng(0, 1, 0, 1))

	var result *orchestrator.Result
	require.NotPanics(t, func() {
		var err error
		result, err = controller.Trigger(context.Background(), "}")
		require.NoError(t, err)
	})

	require.NotNil(t, result)
	assert.True(t, result.Cancelled)
	assert.Equal(t, "}", doc.Text())
	assert.Empty(t, f.notifier.Messages())
	assert.Equal(t, orchestrator.Armed, controller.State())
}

func TestOnType_TriggerAfterDispose(t *testing.T) {
	provider := indentOnType(insert(0, 0, "\t"))
	f := newFixture(provider)
	doc := newDoc("}", document.Options{FormatOnType: true})
	controller := orchestrator.NewOnTypeController(doc, f.formatter)
	controller.Dispose()

	result, err := controller.Trigger(context.Background(), "}")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, provider.Calls())
	assert.Equal(t, "}", doc.Text())
}
