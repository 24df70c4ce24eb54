// Package assistant is the conversational front end over the dispatcher.
// A query is answered, in order, by a canned small-talk reply, by an answer
// persisted from an earlier session, or by dispatching it. Confident
// dispatched answers are persisted for next time.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/switchboard/internal/bus"
	"github.com/normanking/switchboard/internal/data"
	"github.com/normanking/switchboard/internal/dispatch"
	"github.com/normanking/switchboard/internal/logging"
)

// DefaultMinConfidence is the confidence a dispatched answer must exceed to
// be persisted.
const DefaultMinConfidence = 0.6

// SmallTalkHandler is the handler name reported for canned replies.
const SmallTalkHandler = "SmallTalk"

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("empty query")

// Source says where a reply came from.
type Source string

const (
	SourceSmallTalk Source = "smalltalk"
	SourcePersisted Source = "persisted"
	SourceDispatch  Source = "dispatch"
)

// Reply is the assistant's answer to one query.
type Reply struct {
	RequestID  string  `json:"request_id,omitempty"`
	Query      string  `json:"query"`
	Text       string  `json:"text"`
	Source     Source  `json:"source"`
	Handler    string  `json:"handler"`
	Confidence float64 `json:"confidence"`
	Cached     bool    `json:"cached"`
	LatencyMs  float64 `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`

	// Farewell is set when the user said goodbye.
	Farewell bool `json:"farewell,omitempty"`

	// Persisted is set when this reply was written to the response store.
	Persisted bool `json:"persisted,omitempty"`
}

// Dispatcher routes a query to a handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, query string) dispatch.Result
}

// Publisher receives assistant events.
type Publisher interface {
	Publish(e bus.Event) error
}

// Assistant answers queries.
type Assistant struct {
	dispatcher    Dispatcher
	store         data.ResponseStore
	publisher     Publisher
	minConfidence float64
	smallTalk     bool
	log           zerolog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithStore persists confident answers in store and consults it first.
func WithStore(store data.ResponseStore) Option {
	return func(a *Assistant) { a.store = store }
}

// WithMinConfidence sets the persistence threshold.
func WithMinConfidence(threshold float64) Option {
	return func(a *Assistant) { a.minConfidence = threshold }
}

// WithPublisher announces replies served from the response store.
func WithPublisher(p Publisher) Option {
	return func(a *Assistant) { a.publisher = p }
}

// WithoutSmallTalk sends every query to the store and the dispatcher.
func WithoutSmallTalk() Option {
	return func(a *Assistant) { a.smallTalk = false }
}

// New creates an assistant over d.
func New(d Dispatcher, opts ...Option) *Assistant {
	a := &Assistant{
		dispatcher:    d,
		store:         data.NopResponses{},
		minConfidence: DefaultMinConfidence,
		smallTalk:     true,
		log:           logging.For("assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask answers query. Store failures are logged and never fail the reply.
func (a *Assistant) Ask(ctx context.Context, query string) (Reply, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Reply{}, ErrEmptyQuery
	}

	if a.smallTalk {
		if text, farewell, ok := smallTalk(q); ok {
			return Reply{
				Query:      q,
				Text:       text,
				Source:     SourceSmallTalk,
				Handler:    SmallTalkHandler,
				Confidence: 1,
				Farewell:   farewell,
			}, nil
		}
	}

	start := time.Now()
	stored, ok, err := a.store.Lookup(ctx, q)
	if err != nil {
		a.log.Warn().Err(err).Msg("response store lookup failed")
	}
	if ok {
		reply := Reply{
			Query:      q,
			Text:       stored.Response,
			Source:     SourcePersisted,
			Handler:    stored.Handler,
			Confidence: stored.Confidence,
			Cached:     true,
			LatencyMs:  float64(time.Since(start).Microseconds()) / 1000,
		}
		a.announce(reply)
		return reply, nil
	}

	res := a.dispatcher.Dispatch(ctx, q)
	reply := Reply{
		RequestID:  res.RequestID,
		Query:      q,
		Text:       res.Response,
		Source:     SourceDispatch,
		Handler:    res.Handler,
		Confidence: res.Confidence,
		Cached:     res.Cached,
		LatencyMs:  res.LatencyMs,
		Error:      res.Error,
	}

	if res.Matched() && !res.Failed() && res.Confidence > a.minConfidence {
		reply.Persisted = a.persist(ctx, reply)
	}
	return reply, nil
}

func (a *Assistant) persist(ctx context.Context, r Reply) bool {
	if _, nop := a.store.(data.NopResponses); nop {
		return false
	}
	writeCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := a.store.Save(writeCtx, data.Response{
		Query:      r.Query,
		Response:   r.Text,
		Handler:    r.Handler,
		Confidence: r.Confidence,
	})
	if err != nil {
		a.log.Warn().Err(err).Str("handler", r.Handler).Msg("response not persisted")
		return false
	}
	return true
}

func (a *Assistant) announce(r Reply) {
	if a.publisher == nil {
		return
	}
	e := bus.NewEvent(bus.EventResponseRecalled)
	e.Query = r.Query
	e.Handler = r.Handler
	e.Confidence = r.Confidence
	e.Cached = true
	if err := a.publisher.Publish(e); err != nil {
		a.log.Debug().Err(err).Msg("recall event not published")
	}
}

// ForgetAll removes every persisted answer.
func (a *Assistant) ForgetAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

// Remembered returns the number of persisted answers.
func (a *Assistant) Remembered(ctx context.Context) (int64, error) {
	return a.store.Count(ctx)
}
