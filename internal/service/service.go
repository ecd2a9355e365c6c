// Package service answers questions by running the retrieval-augmented
// workflow: rewrite, retrieve, classify, then either rerank and generate or
// stop with the off-topic answer.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragflow/internal/domain"
	"ragflow/internal/workflow"
)

// ProcessEnded is returned by Answer in place of an answer when the traversal fails.
const ProcessEnded = "Process ended."

// Generator produces text for role-tagged messages.
type Generator interface {
	Generate(ctx context.Context, messages []llms.MessageContent) (string, error)
}

// Retriever returns documents for a query, most relevant first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Document, error)
}

// Observer receives the human-readable progress of a traversal.
type Observer interface {
	Section(message string)
	OrderedList(title string, items []string)
}

// Recorder is notified about stages and finished traversals.
type Recorder interface {
	workflow.Hooks
	TraversalFinished(res workflow.Result, err error)
}

type nopObserver struct{}

func (nopObserver) Section(string)               {}
func (nopObserver) OrderedList(string, []string) {}

// Option configures a Service.
type Option func(*Service)

// WithObserver sets where progress messages go.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.obs = o }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithRecorder adds a stage and traversal recorder, such as metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorders = append(s.recorders, r) }
}

// WithConcurrency bounds how many traversals AnswerAll runs at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// Service owns the compiled workflow and its collaborators.
type Service struct {
	gen         Generator
	ret         Retriever
	obs         Observer
	log         *zap.Logger
	recorders   []Recorder
	concurrency int
	flow        *workflow.Workflow
}

// New builds the workflow graph around gen and ret.
func New(gen Generator, ret Retriever, opts ...Option) (*Service, error) {
	if gen == nil || ret == nil {
		return nil, errors.New("service needs a generator and a retriever")
	}
	s := &Service{
		gen:         gen,
		ret:         ret,
		obs:         nopObserver{},
		log:         zap.NewNop(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}

	flow, err := workflow.NewBuilder().
		AddStage(workflow.Rewrite, s.rewrite).
		AddStage(workflow.Retrieve, s.retrieve).
		AddStage(workflow.Classify, s.classify).
		AddStage(workflow.OffTopic, s.offTopic).
		AddStage(workflow.Rerank, s.rerank).
		AddStage(workflow.Generate, s.answer).
		SetEntryPoint(workflow.Rewrite).
		AddEdge(workflow.Rewrite, workflow.Retrieve).
		AddEdge(workflow.Retrieve, workflow.Classify).
		AddConditionalEdges(workflow.Classify, routeByTopic, map[string]workflow.StageID{
			string(domain.OnTopic):  workflow.Rerank,
			string(domain.OffTopic): workflow.OffTopic,
		}).
		AddEdge(workflow.Rerank, workflow.Generate).
		AddEdge(workflow.Generate, workflow.End).
		AddEdge(workflow.OffTopic, workflow.End).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("building workflow: %w", err)
	}
	hooks := make([]workflow.Hooks, 0, len(s.recorders))
	for _, r := range s.recorders {
		hooks = append(hooks, r)
	}
	s.flow = flow.WithHooks(hooks...)
	return s, nil
}

// Run executes one traversal for question and returns the final state and
// the stages that ran.
func (s *Service) Run(ctx context.Context, question string) (workflow.Result, error) {
	log := s.log.With(zap.String("run_id", uuid.NewString()))
	ctx = context.WithValue(ctx, loggerKey{}, log)

	start := time.Now()
	log.Info("traversal started", zap.String("question", question))
	res, err := s.flow.WithHooks(stageLogger{log: log}).Run(ctx, domain.NewQueryState(question))
	for _, r := range s.recorders {
		r.TraversalFinished(res, err)
	}
	if err != nil {
		log.Error("traversal failed",
			zap.Strings("path", pathStrings(res.Path)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return res, err
	}
	log.Info("traversal finished",
		zap.Strings("path", pathStrings(res.Path)),
		zap.String("classification", string(res.State.Classification)),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// Answer runs one traversal and returns the answer. On failure it returns
// ProcessEnded together with the error.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	res, err := s.Run(ctx, question)
	if err != nil {
		return ProcessEnded, err
	}
	return res.State.LLMOutput, nil
}

// Outcome is the result of one question answered by AnswerAll.
type Outcome struct {
	Question string
	Answer   string
	Path     []workflow.StageID
	Err      error
}

// AnswerAll answers independent questions concurrently. A failing question
// does not stop the others. Outcomes keep the order of questions.
func (s *Service) AnswerAll(ctx context.Context, questions []string) []Outcome {
	out := make([]Outcome, len(questions))
	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, q := range questions {
		i, q := i, q
		g.Go(func() error {
			res, err := s.Run(ctx, q)
			o := Outcome{Question: q, Path: res.Path, Err: err, Answer: res.State.LLMOutput}
			if err != nil {
				o.Answer = ProcessEnded
			}
			out[i] = o
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type loggerKey struct{}

func (s *Service) loggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return s.log
}

type stageLogger struct {
	log *zap.Logger
}

func (l stageLogger) StageStarted(_ context.Context, id workflow.StageID) {
	l.log.Debug("stage started", zap.String("stage", string(id)))
}

func (l stageLogger) StageFinished(_ context.Context, id workflow.StageID, elapsed time.Duration, err error) {
	if err != nil {
		l.log.Warn("stage failed", zap.String("stage", string(id)), zap.Duration("duration", elapsed), zap.Error(err))
		return
	}
	l.log.Info("stage finished", zap.String("stage", string(id)), zap.Duration("duration", elapsed))
}

func pathStrings(path []workflow.StageID) []string {
	out := make([]string, len(path))
	for i, id := range path {
		out[i] = string(id)
	}
	return out
}
