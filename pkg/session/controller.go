package session

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/helpers"
	"github.com/go-go-golems/grillo/pkg/prompt"
	"github.com/go-go-golems/grillo/pkg/steps"
	"github.com/go-go-golems/grillo/pkg/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyPrompt rejects a whitespace-only submission before any mutation.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrRequestInFlight rejects a second submit while one is outstanding.
	ErrRequestInFlight = errors.New("a request is already in flight")
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
)

// PrepromptSource supplies the user-authored preamble for the system message,
// usually the settings service.
type PrepromptSource interface {
	GetCurrentPreprompt() string
}

// PendingRequest is the controller's record of the single outstanding
// completion call.
type PendingRequest struct {
	ID              string
	CorrelationID   string
	SubmittedPrompt string

	cancelled bool
	result    *steps.StepResult[string]
}

// Wait blocks until the transport resolves and returns the raw result. The
// caller hands it back through HandleResult; waiting and handling are split so
// the wait can run off the main loop while all mutation stays on it.
func (r *PendingRequest) Wait() helpers.Result[string] {
	res, ok := <-r.result.GetChannel()
	if !ok {
		return helpers.NewErrorResult[string](errors.New("request channel closed without a result"))
	}
	return res
}

type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	// OutcomeDiscarded is the cancellation race: the result arrived after a
	// cancel or for a request that is no longer pending. Not an error.
	OutcomeDiscarded OutcomeKind = "discarded"
)

type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

// Controller manages exactly one in-flight request at a time: submission,
// success, failure, and cancellation. Every path out of Submitting returns the
// controller to Idle.
type Controller struct {
	manager   conversation.Manager
	assembler *prompt.Assembler
	transport transport.Transport
	publisher *events.Publisher

	preprompts  PrepromptSource
	envContext  func() string
	completeCtx context.Context

	mu      sync.Mutex
	state   State
	pending *PendingRequest
}

type ControllerOption func(*Controller)

func WithPublisher(publisher *events.Publisher) ControllerOption {
	return func(c *Controller) {
		c.publisher = publisher
	}
}

func WithPrepromptSource(source PrepromptSource) ControllerOption {
	return func(c *Controller) {
		c.preprompts = source
	}
}

// WithEnvContext sets the provider of machine-gathered environment context
// for the system message.
func WithEnvContext(f func() string) ControllerOption {
	return func(c *Controller) {
		c.envContext = f
	}
}

func NewController(
	ctx context.Context,
	manager conversation.Manager,
	assembler *prompt.Assembler,
	tp transport.Transport,
	options ...ControllerOption,
) *Controller {
	ret := &Controller{
		manager:     manager,
		assembler:   assembler,
		transport:   tp,
		completeCtx: ctx,
		state:       StateIdle,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Loading reports whether a request is outstanding.
func (c *Controller) Loading() bool {
	return c.State() == StateSubmitting
}

// Submit validates the prompt, appends it as a user message, and dispatches
// one completion call. It rejects while Submitting instead of queueing or
// replacing.
func (c *Controller) Submit(text string) (*PendingRequest, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyPrompt
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return nil, ErrRequestInFlight
	}

	c.manager.AddUserMessage(text)

	preprompt := ""
	if c.preprompts != nil {
		preprompt = c.preprompts.GetCurrentPreprompt()
	}
	envContext := ""
	if c.envContext != nil {
		envContext = c.envContext()
	}
	outbound := c.assembler.Assemble(c.manager.Messages(), preprompt, envContext)

	req := &PendingRequest{
		ID:              uuid.New().String(),
		CorrelationID:   events.NewCorrelationID(),
		SubmittedPrompt: text,
	}

	step := steps.NewLambdaStep(func(ctx context.Context, msgs []prompt.Message) (string, error) {
		return c.transport.Complete(ctx, msgs)
	})
	ctx := helpers.ContextWithCorrelationID(c.completeCtx, req.CorrelationID)
	result, err := step.Start(ctx, outbound)
	if err != nil {
		c.manager.RollbackLastUserMessage()
		return nil, errors.Wrap(err, "could not start completion request")
	}
	req.result = result

	c.pending = req
	c.state = StateSubmitting

	log.Debug().
		Str("request_id", req.ID).
		Str("conversation_id", c.manager.ConversationID()).
		Msg("submitted request")
	c.publisher.PublishBlind(events.NewStartEvent(c.metadata(req)))

	return req, nil
}

// Cancel disarms the outstanding request: the pending user message is rolled
// back, the submitted text is handed back for re-editing, and loading clears
// immediately without waiting for the network call. The transport result, if
// it still arrives, is discarded in HandleResult.
func (c *Controller) Cancel() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSubmitting || c.pending == nil {
		return "", false
	}

	req := c.pending
	req.cancelled = true
	req.result.Cancel()
	c.state = StateIdle

	c.manager.RollbackLastUserMessage()

	log.Debug().Str("request_id", req.ID).Msg("cancelled request")
	c.publisher.PublishBlind(events.NewInterruptEvent(c.metadata(req)))

	return req.SubmittedPrompt, true
}

// HandleResult applies a resolved transport result to the conversation. A
// result for an unknown request id, or for a request cancelled in the
// meantime, is discarded silently.
func (c *Controller) HandleResult(requestID string, res helpers.Result[string]) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || c.pending.ID != requestID {
		log.Debug().Str("request_id", requestID).Msg("discarding result for unknown request")
		return Outcome{Kind: OutcomeDiscarded}
	}

	req := c.pending
	c.pending = nil
	c.state = StateIdle

	if req.cancelled {
		log.Debug().Str("request_id", req.ID).Msg("discarding result of cancelled request")
		return Outcome{Kind: OutcomeDiscarded}
	}

	if res.Error() != nil {
		err := res.Error()
		c.manager.RollbackLastUserMessage()
		c.manager.AddErrorMessage(err.Error())

		log.Warn().Err(err).Str("request_id", req.ID).Msg("request failed")
		c.publisher.PublishBlind(events.NewErrorEvent(c.metadata(req), err.Error()))
		return Outcome{Kind: OutcomeFailed, Err: err}
	}

	text := res.ValueOr("")
	c.manager.AddAssistantMessage(text)
	if err := c.manager.PersistActive(); err != nil {
		log.Error().Err(err).Str("conversation_id", c.manager.ConversationID()).Msg("could not persist conversation")
	}

	c.publisher.PublishBlind(events.NewFinalEvent(c.metadata(req), text))
	return Outcome{Kind: OutcomeCompleted, Text: text}
}

func (c *Controller) metadata(req *PendingRequest) events.EventMetadata {
	return events.EventMetadata{
		ConversationID: c.manager.ConversationID(),
		RequestID:      req.ID,
		CorrelationID:  req.CorrelationID,
	}
}
