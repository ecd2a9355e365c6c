// Package workflow runs a query state through a fixed graph of stages.
//
// A graph is assembled with a Builder, validated by Compile, and then run any
// number of times, concurrently if needed. Each transition is either an
// unconditional edge or a conditional edge whose router inspects the state
// produced by the stage it leaves. Compile rejects graphs with cycles, so a
// traversal visits every stage at most once.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragflow/internal/domain"
)

// StageID names a node of the graph.
type StageID string

const (
	Rewrite  StageID = "rewriter"
	Retrieve StageID = "retrieve_documents"
	Classify StageID = "topic_decision"
	Rerank   StageID = "rerank_documents"
	Generate StageID = "generate_answer"
	OffTopic StageID = "off_topic_response"

	// End is the terminal pseudo-stage.
	End StageID = "__end__"
)

var (
	// ErrInvalidGraph is returned by Compile for malformed graphs.
	ErrInvalidGraph = errors.New("invalid workflow graph")
	// ErrUnknownRoute is returned when a router picks a key with no target.
	ErrUnknownRoute = errors.New("unknown route")
)

// StageFunc transforms the state. It receives its own copy of the state.
type StageFunc func(ctx context.Context, st domain.QueryState) (domain.QueryState, error)

// Router picks a route key from the state produced by the branching stage.
type Router func(st domain.QueryState) string

// Hooks observe stage execution.
type Hooks interface {
	StageStarted(ctx context.Context, id StageID)
	StageFinished(ctx context.Context, id StageID, elapsed time.Duration, err error)
}

// StageError reports the stage that aborted a traversal.
type StageError struct {
	Stage StageID
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of one traversal.
type Result struct {
	State domain.QueryState
	// Path lists the stages that ran, in order, including a failed one.
	Path []StageID
}

type branch struct {
	route   Router
	targets map[string]StageID
}

// Workflow is a compiled, immutable graph.
type Workflow struct {
	entry    StageID
	stages   map[StageID]StageFunc
	edges    map[StageID]StageID
	branches map[StageID]branch
	hooks    []Hooks
	tracer   trace.Tracer
}

// WithHooks returns a copy of w that also reports to hooks.
func (w *Workflow) WithHooks(hooks ...Hooks) *Workflow {
	cp := *w
	cp.hooks = append(append([]Hooks(nil), w.hooks...), hooks...)
	return &cp
}

// Entry returns the first stage.
func (w *Workflow) Entry() StageID { return w.entry }

// Successors lists the possible next stages of id.
func (w *Workflow) Successors(id StageID) []StageID {
	if to, ok := w.edges[id]; ok {
		return []StageID{to}
	}
	b, ok := w.branches[id]
	if !ok {
		return nil
	}
	out := make([]StageID, 0, len(b.targets))
	seen := make(map[StageID]struct{}, len(b.targets))
	for _, to := range b.targets {
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	return out
}

// Run executes the graph from the entry stage until End. Stages run one after
// another; cancellation is checked before each stage starts. The first stage
// error aborts the traversal and is returned as a *StageError.
func (w *Workflow) Run(ctx context.Context, st domain.QueryState) (Result, error) {
	res := Result{State: st.Clone()}
	visited := make(map[StageID]struct{}, len(w.stages))
	cur := w.entry
	for cur != End {
		if err := ctx.Err(); err != nil {
			return res, &StageError{Stage: cur, Err: err}
		}
		if _, again := visited[cur]; again {
			return res, &StageError{Stage: cur, Err: fmt.Errorf("%w: stage revisited", ErrInvalidGraph)}
		}
		visited[cur] = struct{}{}
		res.Path = append(res.Path, cur)

		out, err := w.runStage(ctx, cur, res.State)
		if err != nil {
			return res, &StageError{Stage: cur, Err: err}
		}
		res.State = out

		next, err := w.next(cur, res.State)
		if err != nil {
			return res, &StageError{Stage: cur, Err: err}
		}
		cur = next
	}
	return res, nil
}

func (w *Workflow) runStage(ctx context.Context, id StageID, st domain.QueryState) (domain.QueryState, error) {
	ctx, span := w.tracer.Start(ctx, string(id), trace.WithAttributes(attribute.String("stage", string(id))))
	defer span.End()

	for _, h := range w.hooks {
		h.StageStarted(ctx, id)
	}
	start := time.Now()
	out, err := w.stages[id](ctx, st.Clone())
	elapsed := time.Since(start)
	for _, h := range w.hooks {
		h.StageFinished(ctx, id, elapsed, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return st, err
	}
	return out, nil
}

func (w *Workflow) next(id StageID, st domain.QueryState) (StageID, error) {
	if to, ok := w.edges[id]; ok {
		return to, nil
	}
	b := w.branches[id]
	key := b.route(st)
	to, ok := b.targets[key]
	if !ok {
		return "", fmt.Errorf("%w: %q from %s", ErrUnknownRoute, key, id)
	}
	return to, nil
}

// Builder assembles a graph.
type Builder struct {
	entry    StageID
	stages   map[StageID]StageFunc
	edges    map[StageID]StageID
	branches map[StageID]branch
	errs     []error
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		stages:   make(map[StageID]StageFunc),
		edges:    make(map[StageID]StageID),
		branches: make(map[StageID]branch),
	}
}

// AddStage registers fn under id.
func (b *Builder) AddStage(id StageID, fn StageFunc) *Builder {
	switch {
	case id == End || id == "":
		b.errs = append(b.errs, fmt.Errorf("reserved stage id %q", id))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("stage %s has no function", id))
	default:
		if _, dup := b.stages[id]; dup {
			b.errs = append(b.errs, fmt.Errorf("stage %s added twice", id))
		}
		b.stages[id] = fn
	}
	return b
}

// AddEdge adds an unconditional transition.
func (b *Builder) AddEdge(from, to StageID) *Builder {
	if _, dup := b.edges[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("stage %s has two edges", from))
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdges adds a branch: after from runs, route picks a key of routes.
func (b *Builder) AddConditionalEdges(from StageID, route Router, routes map[string]StageID) *Builder {
	if route == nil || len(routes) == 0 {
		b.errs = append(b.errs, fmt.Errorf("branch from %s needs a router and routes", from))
		return b
	}
	if _, dup := b.branches[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("stage %s has two branches", from))
	}
	targets := make(map[string]StageID, len(routes))
	for k, v := range routes {
		targets[k] = v
	}
	b.branches[from] = branch{route: route, targets: targets}
	return b
}

// SetEntryPoint sets the first stage.
func (b *Builder) SetEntryPoint(id StageID) *Builder {
	b.entry = id
	return b
}

// Compile validates the graph and freezes it. On success the builder is
// emptied and can be used to describe another graph.
func (b *Builder) Compile() (*Workflow, error) {
	errs := append([]error(nil), b.errs...)
	if _, ok := b.stages[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry point %q is not a stage", b.entry))
	}
	known := func(id StageID) bool {
		_, ok := b.stages[id]
		return ok || id == End
	}
	for id := range b.stages {
		_, hasEdge := b.edges[id]
		_, hasBranch := b.branches[id]
		if hasEdge == hasBranch {
			errs = append(errs, fmt.Errorf("stage %s needs exactly one outgoing transition", id))
		}
	}
	for from, to := range b.edges {
		if _, ok := b.stages[from]; !ok {
			errs = append(errs, fmt.Errorf("edge from unknown stage %s", from))
		}
		if !known(to) {
			errs = append(errs, fmt.Errorf("edge to unknown stage %s", to))
		}
	}
	for from, br := range b.branches {
		if _, ok := b.stages[from]; !ok {
			errs = append(errs, fmt.Errorf("branch from unknown stage %s", from))
		}
		for key, to := range br.targets {
			if !known(to) {
				errs = append(errs, fmt.Errorf("route %q to unknown stage %s", key, to))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}

	w := &Workflow{
		entry:    b.entry,
		stages:   b.stages,
		edges:    b.edges,
		branches: b.branches,
		tracer:   otel.Tracer("ragflow/workflow"),
	}
	if id, ok := findCycle(w); ok {
		return nil, fmt.Errorf("%w: cycle through %s", ErrInvalidGraph, id)
	}
	*b = *NewBuilder()
	return w, nil
}

func findCycle(w *Workflow) (StageID, bool) {
	const (
		_ = iota
		active
		done
	)
	state := make(map[StageID]int, len(w.stages))
	var visit func(StageID) (StageID, bool)
	visit = func(id StageID) (StageID, bool) {
		if id == End {
			return "", false
		}
		switch state[id] {
		case active:
			return id, true
		case done:
			return "", false
		}
		state[id] = active
		for _, next := range w.Successors(id) {
			if c, ok := visit(next); ok {
				return c, true
			}
		}
		state[id] = done
		return "", false
	}
	for id := range w.stages {
		if c, ok := visit(id); ok {
			return c, true
		}
	}
	return "", false
}
