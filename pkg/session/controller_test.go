package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/prompt"
)

type recordingStore struct {
	saved []*conversation.Conversation
}

func (r *recordingStore) SaveConversation(c *conversation.Conversation) error {
	r.saved = append(r.saved, c)
	return nil
}

func (r *recordingStore) GetConversation(id string) (*conversation.Conversation, bool) {
	return nil, false
}

// blockingTransport holds every call until the test releases it.
type blockingTransport struct {
	release  chan struct{}
	response string
	err      error
	calls    int
}

func newBlockingTransport(response string, err error) *blockingTransport {
	return &blockingTransport{
		release:  make(chan struct{}),
		response: response,
		err:      err,
	}
}

func (b *blockingTransport) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	b.calls++
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	if b.err != nil {
		return "", b.err
	}
	return b.response, nil
}

func newTestController(t *testing.T, tp *blockingTransport) (*Controller, *conversation.ManagerImpl, *recordingStore) {
	t.Helper()
	store := &recordingStore{}
	manager := conversation.NewManager(conversation.WithStore(store))
	controller := NewController(context.Background(), manager, prompt.NewAssembler(), tp)
	return controller, manager, store
}

func TestSubmitRejectsEmptyPrompt(t *testing.T) {
	controller, manager, _ := newTestController(t, newBlockingTransport("hi", nil))

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := controller.Submit(text)
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	}
	assert.Zero(t, manager.MessageCount(), "validation happens before any mutation")
	assert.Equal(t, StateIdle, controller.State())
}

func TestSubmitAppendsUserMessageAndDispatchesOnce(t *testing.T) {
	tp := newBlockingTransport("the answer", nil)
	controller, manager, _ := newTestController(t, tp)

	req, err := controller.Submit("a question")
	require.NoError(t, err)
	require.NotNil(t, req)

	assert.Equal(t, 1, manager.MessageCount())
	assert.Equal(t, conversation.RoleUser, manager.Messages()[0].Role)
	assert.Equal(t, "a question", req.SubmittedPrompt)
	assert.True(t, controller.Loading())

	close(tp.release)
	controller.HandleResult(req.ID, req.Wait())
	assert.Equal(t, 1, tp.calls)
}

func TestDoubleSubmitIsRejected(t *testing.T) {
	tp := newBlockingTransport("hi", nil)
	controller, manager, _ := newTestController(t, tp)

	req, err := controller.Submit("first")
	require.NoError(t, err)

	_, err = controller.Submit("second")
	assert.ErrorIs(t, err, ErrRequestInFlight)
	assert.Equal(t, 1, manager.MessageCount(), "second submit must not append")

	close(tp.release)
	controller.HandleResult(req.ID, req.Wait())
}

func TestSuccessfulTurnAppendsAndPersists(t *testing.T) {
	tp := newBlockingTransport("use :q", nil)
	controller, manager, store := newTestController(t, tp)

	req, err := controller.Submit("how do I quit vim?")
	require.NoError(t, err)
	close(tp.release)

	outcome := controller.HandleResult(req.ID, req.Wait())
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, "use :q", outcome.Text)

	require.Equal(t, 2, manager.MessageCount())
	assert.Equal(t, conversation.RoleAssistant, manager.Messages()[1].Role)
	assert.Equal(t, StateIdle, controller.State())
	require.Len(t, store.saved, 1, "completed turn is persisted")
}

func TestFailureRollsBackAndAppendsErrorMessage(t *testing.T) {
	tp := newBlockingTransport("", errors.New("connection refused"))
	controller, manager, store := newTestController(t, tp)

	req, err := controller.Submit("a question")
	require.NoError(t, err)
	close(tp.release)

	outcome := controller.HandleResult(req.ID, req.Wait())
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.ErrorContains(t, outcome.Err, "connection refused")

	require.Equal(t, 1, manager.MessageCount(), "user message rolled back, error appended")
	assert.Equal(t, conversation.RoleError, manager.Messages()[0].Role)
	assert.Equal(t, StateIdle, controller.State())
	assert.Empty(t, store.saved, "failed turns are not persisted")
}

func TestCancellationRestoresExactly(t *testing.T) {
	tp := newBlockingTransport("late answer", nil)
	controller, manager, store := newTestController(t, tp)
	before := manager.MessageCount()

	req, err := controller.Submit("how do I quit?")
	require.NoError(t, err)

	text, ok := controller.Cancel()
	require.True(t, ok)
	assert.Equal(t, "how do I quit?", text, "submitted text restored for re-editing")
	assert.Equal(t, before, manager.MessageCount())
	assert.False(t, controller.Loading(), "loading clears without waiting for the network")

	// the transport still resolves, the late result is discarded silently
	outcome := controller.HandleResult(req.ID, req.Wait())
	assert.Equal(t, OutcomeDiscarded, outcome.Kind)
	assert.Equal(t, before, manager.MessageCount())
	assert.Empty(t, store.saved)
}

func TestCancelWhileIdleIsNoOp(t *testing.T) {
	controller, _, _ := newTestController(t, newBlockingTransport("hi", nil))

	_, ok := controller.Cancel()
	assert.False(t, ok)
}

func TestResubmitAfterCancelIsAccepted(t *testing.T) {
	tp := newBlockingTransport("answer", nil)
	controller, manager, _ := newTestController(t, tp)

	first, err := controller.Submit("first try")
	require.NoError(t, err)
	_, ok := controller.Cancel()
	require.True(t, ok)

	second, err := controller.Submit("second try")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	close(tp.release)

	// the first request's late result no longer matches the pending id
	outcome := controller.HandleResult(first.ID, first.Wait())
	assert.Equal(t, OutcomeDiscarded, outcome.Kind)

	outcome = controller.HandleResult(second.ID, second.Wait())
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 2, manager.MessageCount())
}

func TestHandleResultUnknownRequestIsDiscarded(t *testing.T) {
	tp := newBlockingTransport("hi", nil)
	controller, _, _ := newTestController(t, tp)

	req, err := controller.Submit("question")
	require.NoError(t, err)
	close(tp.release)
	res := req.Wait()

	outcome := controller.HandleResult("not-the-request", res)
	assert.Equal(t, OutcomeDiscarded, outcome.Kind)
	assert.True(t, controller.Loading(), "mismatched id leaves the real request pending")

	outcome = controller.HandleResult(req.ID, res)
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
}

func TestCancelledTransportCallSeesContextDone(t *testing.T) {
	tp := newBlockingTransport("never delivered", nil)
	controller, _, _ := newTestController(t, tp)

	req, err := controller.Submit("question")
	require.NoError(t, err)
	_, ok := controller.Cancel()
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = req.Wait()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request never resolved")
	}
}
