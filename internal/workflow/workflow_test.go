package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/domain"
)

func appendStage(tag string) StageFunc {
	return func(_ context.Context, st domain.QueryState) (domain.QueryState, error) {
		st.TopDocuments = append(st.TopDocuments, tag)
		return st, nil
	}
}

func branching(t *testing.T, verdict domain.Classification) *Workflow {
	t.Helper()
	w, err := NewBuilder().
		AddStage(Rewrite, appendStage("rewrite")).
		AddStage(Classify, func(_ context.Context, st domain.QueryState) (domain.QueryState, error) {
			st.Classification = verdict
			return st, nil
		}).
		AddStage(Generate, appendStage("generate")).
		AddStage(OffTopic, appendStage("off")).
		SetEntryPoint(Rewrite).
		AddEdge(Rewrite, Classify).
		AddConditionalEdges(Classify, func(st domain.QueryState) string { return string(st.Classification) }, map[string]StageID{
			string(domain.OnTopic):  Generate,
			string(domain.OffTopic): OffTopic,
		}).
		AddEdge(Generate, End).
		AddEdge(OffTopic, End).
		Compile()
	require.NoError(t, err)
	return w
}

func TestRunFollowsBranch(t *testing.T) {
	res, err := branching(t, domain.OnTopic).Run(context.Background(), domain.NewQueryState("q"))
	require.NoError(t, err)
	assert.Equal(t, []StageID{Rewrite, Classify, Generate}, res.Path)
	assert.Equal(t, []string{"rewrite", "generate"}, res.State.TopDocuments)

	res, err = branching(t, domain.OffTopic).Run(context.Background(), domain.NewQueryState("q"))
	require.NoError(t, err)
	assert.Equal(t, []StageID{Rewrite, Classify, OffTopic}, res.Path)
}

func TestRunUnknownRoute(t *testing.T) {
	_, err := branching(t, "maybe").Run(context.Background(), domain.NewQueryState("q"))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Classify, se.Stage)
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestRunDoesNotMutateInput(t *testing.T) {
	in := domain.QueryState{Question: "q", TopDocuments: []string{"seed"}}
	_, err := branching(t, domain.OnTopic).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed"}, in.TopDocuments)
}

func TestRunStopsOnStageError(t *testing.T) {
	cause := errors.New("boom")
	ran := false
	w, err := NewBuilder().
		AddStage(Rewrite, func(_ context.Context, st domain.QueryState) (domain.QueryState, error) {
			st.Question = "half done"
			return st, cause
		}).
		AddStage(Generate, func(_ context.Context, st domain.QueryState) (domain.QueryState, error) {
			ran = true
			return st, nil
		}).
		SetEntryPoint(Rewrite).
		AddEdge(Rewrite, Generate).
		AddEdge(Generate, End).
		Compile()
	require.NoError(t, err)

	res, err := w.Run(context.Background(), domain.NewQueryState("q"))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Rewrite, se.Stage)
	assert.ErrorIs(t, err, cause)
	assert.False(t, ran)
	assert.Equal(t, "q", res.State.Question)
	assert.Equal(t, []StageID{Rewrite}, res.Path)
}

func TestRunCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	w, err := NewBuilder().
		AddStage(Rewrite, func(_ context.Context, st domain.QueryState) (domain.QueryState, error) {
			cancel()
			return st, nil
		}).
		AddStage(Generate, func(_ context.Context, st domain.QueryState) (domain.QueryState, error) {
			ran = true
			return st, nil
		}).
		SetEntryPoint(Rewrite).
		AddEdge(Rewrite, Generate).
		AddEdge(Generate, End).
		Compile()
	require.NoError(t, err)

	_, err = w.Run(ctx, domain.NewQueryState("q"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Generate, se.Stage)
}

type recorder struct {
	mu       sync.Mutex
	started  []StageID
	finished []StageID
	failed   []StageID
}

func (r *recorder) StageStarted(_ context.Context, id StageID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recorder) StageFinished(_ context.Context, id StageID, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, id)
	if err != nil {
		r.failed = append(r.failed, id)
	}
}

func TestHooksSeeEveryStage(t *testing.T) {
	rec := &recorder{}
	w := branching(t, domain.OffTopic).WithHooks(rec)

	_, err := w.Run(context.Background(), domain.NewQueryState("q"))
	require.NoError(t, err)
	assert.Equal(t, []StageID{Rewrite, Classify, OffTopic}, rec.started)
	assert.Equal(t, rec.started, rec.finished)
	assert.Empty(t, rec.failed)
}

func TestCompileRejects(t *testing.T) {
	noop := appendStage("x")
	tests := []struct {
		name  string
		build func() *Builder
	}{
		{"missing entry", func() *Builder {
			return NewBuilder().AddStage(Rewrite, noop).AddEdge(Rewrite, End)
		}},
		{"no outgoing edge", func() *Builder {
			return NewBuilder().AddStage(Rewrite, noop).SetEntryPoint(Rewrite)
		}},
		{"edge to unknown stage", func() *Builder {
			return NewBuilder().AddStage(Rewrite, noop).SetEntryPoint(Rewrite).AddEdge(Rewrite, Rerank)
		}},
		{"edge and branch", func() *Builder {
			return NewBuilder().AddStage(Rewrite, noop).SetEntryPoint(Rewrite).
				AddEdge(Rewrite, End).
				AddConditionalEdges(Rewrite, func(domain.QueryState) string { return "a" }, map[string]StageID{"a": End})
		}},
		{"reserved id", func() *Builder {
			return NewBuilder().AddStage(End, noop)
		}},
		{"cycle", func() *Builder {
			return NewBuilder().
				AddStage(Rewrite, noop).AddStage(Retrieve, noop).
				SetEntryPoint(Rewrite).
				AddEdge(Rewrite, Retrieve).
				AddEdge(Retrieve, Rewrite)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile()
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestSuccessors(t *testing.T) {
	w := branching(t, domain.OnTopic)
	assert.Equal(t, Rewrite, w.Entry())
	assert.Equal(t, []StageID{Classify}, w.Successors(Rewrite))
	assert.ElementsMatch(t, []StageID{Generate, OffTopic}, w.Successors(Classify))
	assert.Nil(t, w.Successors(End))
}

func TestBuilderReusableAfterCompile(t *testing.T) {
	b := NewBuilder()
	first, err := b.AddStage(Rewrite, appendStage("first")).
		SetEntryPoint(Rewrite).
		AddEdge(Rewrite, End).
		Compile()
	require.NoError(t, err)

	second, err := b.AddStage(Generate, appendStage("second")).
		SetEntryPoint(Generate).
		AddEdge(Generate, End).
		Compile()
	require.NoError(t, err)

	res, err := first.Run(context.Background(), domain.NewQueryState("q"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, res.State.TopDocuments)
	assert.Equal(t, []StageID{Rewrite}, res.Path)

	res, err = second.Run(context.Background(), domain.NewQueryState("q"))
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, res.State.TopDocuments)
	assert.Equal(t, []StageID{Generate}, res.Path)
}
