package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ragflow/internal/domain"
	"ragflow/internal/prompt"
	"ragflow/internal/workflow"
)

const (
	stageRewrite  = "rewrite"
	stageClassify = "classify"
	stageRerank   = "rerank"
	stageAnswer   = "answer"
)

func stageOf(text string) string {
	switch {
	case strings.Contains(text, "question re-writer"):
		return stageRewrite
	case strings.Contains(text, "Is this on-topic?"):
		return stageClassify
	case strings.Contains(text, "order of preference"):
		return stageRerank
	default:
		return stageAnswer
	}
}

type scriptedGen struct {
	mu      sync.Mutex
	respond func(stage, text string) (string, error)
	calls   []string
	prompts map[string]string
}

func fixedGen(replies map[string]string) *scriptedGen {
	return &scriptedGen{respond: func(stage, _ string) (string, error) {
		return replies[stage], nil
	}}
}

func (g *scriptedGen) Generate(_ context.Context, msgs []llms.MessageContent) (string, error) {
	text := prompt.Text(msgs)
	stage := stageOf(text)
	g.mu.Lock()
	g.calls = append(g.calls, stage)
	if g.prompts == nil {
		g.prompts = make(map[string]string)
	}
	g.prompts[stage] = text
	g.mu.Unlock()
	return g.respond(stage, text)
}

type fakeRetriever struct {
	mu       sync.Mutex
	docs     func(query string) ([]domain.Document, error)
	gotQuery string
}

func staticRetriever(contents ...string) *fakeRetriever {
	docs := make([]domain.Document, len(contents))
	for i, c := range contents {
		docs[i] = domain.Document{Content: c, Metadata: map[string]any{"source": "Sales Team Channel"}}
	}
	return &fakeRetriever{docs: func(string) ([]domain.Document, error) { return docs, nil }}
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string) ([]domain.Document, error) {
	r.mu.Lock()
	r.gotQuery = query
	r.mu.Unlock()
	return r.docs(query)
}

type recordingObserver struct {
	sections []string
	lists    map[string][]string
}

func (o *recordingObserver) Section(msg string) { o.sections = append(o.sections, msg) }

func (o *recordingObserver) OrderedList(title string, items []string) {
	if o.lists == nil {
		o.lists = make(map[string][]string)
	}
	o.lists[title] = append([]string(nil), items...)
}

var michaelReplies = map[string]string{
	stageRewrite:  "  Which tasks is Michael Brown working on?\n",
	stageClassify: "on-topic",
	stageRerank:   "\n1st preference: Michael Brown is finalizing the Acme contract.  \n",
	stageAnswer:   "Michael is finalizing the Acme contract.",
}

func newService(t *testing.T, gen Generator, ret Retriever, opts ...Option) *Service {
	t.Helper()
	s, err := New(gen, ret, opts...)
	require.NoError(t, err)
	return s
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.Classification
	}{
		{"on-topic", domain.OnTopic},
		{"ON-TOPIC", domain.OnTopic},
		{"The question is On-Topic.", domain.OnTopic},
		{"This appears off-topic.", domain.OffTopic},
		{"on topic", domain.OffTopic},
		{"", domain.OffTopic},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyResponse(tt.raw))
		})
	}
}

func TestRunOnTopic(t *testing.T) {
	gen := fixedGen(michaelReplies)
	ret := staticRetriever("doc one", "doc two", "doc three", "doc four")
	obs := &recordingObserver{}
	s := newService(t, gen, ret, WithObserver(obs))

	res, err := s.Run(context.Background(), "What tasks are Michael involved in?")
	require.NoError(t, err)

	assert.Equal(t, []workflow.StageID{
		workflow.Rewrite, workflow.Retrieve, workflow.Classify, workflow.Rerank, workflow.Generate,
	}, res.Path)
	assert.Equal(t, "Which tasks is Michael Brown working on?", res.State.Question)
	assert.Equal(t, "Which tasks is Michael Brown working on?", ret.gotQuery)
	assert.Equal(t, domain.OnTopic, res.State.Classification)
	assert.Equal(t, []string{"1st preference: Michael Brown is finalizing the Acme contract."}, res.State.TopDocuments)
	assert.Equal(t, "Michael is finalizing the Acme contract.", res.State.LLMOutput)

	assert.Equal(t, []string{stageRewrite, stageClassify, stageRerank, stageAnswer}, gen.calls)
	assert.Contains(t, gen.prompts[stageClassify], "doc one\ndoc two\ndoc three")
	assert.NotContains(t, gen.prompts[stageClassify], "doc four")
	assert.Contains(t, gen.prompts[stageAnswer], "1st preference: Michael Brown is finalizing the Acme contract.")

	assert.Equal(t, []string{"doc one", "doc two", "doc three"}, obs.lists["Retrieved documents: "])
	assert.Contains(t, obs.sections, "Starting query rewriting...")
	assert.Contains(t, obs.sections, "Rewritten question:\nWhich tasks is Michael Brown working on?")
	assert.Contains(t, obs.sections, "Classification result: on-topic")
	assert.Contains(t, obs.sections, "Generated answer: Michael is finalizing the Acme contract.")
}

func TestRunOffTopic(t *testing.T) {
	gen := fixedGen(map[string]string{
		stageRewrite:  "What is the weather on Mars?",
		stageClassify: "This appears off-topic.",
	})
	obs := &recordingObserver{}
	s := newService(t, gen, staticRetriever("doc one"), WithObserver(obs))

	res, err := s.Run(context.Background(), "What's the weather on Mars?")
	require.NoError(t, err)

	assert.Equal(t, []workflow.StageID{workflow.Rewrite, workflow.Retrieve, workflow.Classify, workflow.OffTopic}, res.Path)
	assert.Equal(t, domain.OffTopic, res.State.Classification)
	assert.Equal(t, OffTopicAnswer, res.State.LLMOutput)
	assert.Equal(t, []string{"doc one"}, res.State.TopDocuments)
	assert.Equal(t, []string{stageRewrite, stageClassify}, gen.calls)
	assert.Contains(t, obs.sections, "Question is off-topic. Ending process.")
}

func TestRunWithNoDocumentsStillClassifies(t *testing.T) {
	gen := fixedGen(map[string]string{
		stageRewrite:  "Who is Michael?",
		stageClassify: "off-topic",
	})
	s := newService(t, gen, staticRetriever())

	res, err := s.Run(context.Background(), "Who is Michael?")
	require.NoError(t, err)

	assert.NotNil(t, res.State.TopDocuments)
	assert.Empty(t, res.State.TopDocuments)
	assert.Contains(t, gen.calls, stageClassify)
	assert.Equal(t, OffTopicAnswer, res.State.LLMOutput)
}

func TestAnswerReturnsSentinelOnFailure(t *testing.T) {
	cause := errors.New("connection refused")
	tests := []struct {
		name      string
		gen       *scriptedGen
		ret       *fakeRetriever
		wantErr   error
		wantStage workflow.StageID
	}{
		{
			name: "retrieval down",
			gen:  fixedGen(michaelReplies),
			ret: &fakeRetriever{docs: func(string) ([]domain.Document, error) {
				return nil, cause
			}},
			wantErr:   domain.ErrRetrievalUnavailable,
			wantStage: workflow.Retrieve,
		},
		{
			name: "rewrite model down",
			gen: &scriptedGen{respond: func(string, string) (string, error) {
				return "", cause
			}},
			ret:       staticRetriever("doc"),
			wantErr:   domain.ErrGenerationUnavailable,
			wantStage: workflow.Rewrite,
		},
		{
			name: "rerank model down",
			gen: &scriptedGen{respond: func(stage, _ string) (string, error) {
				if stage == stageRerank {
					return "", cause
				}
				return michaelReplies[stage], nil
			}},
			ret:       staticRetriever("doc"),
			wantErr:   domain.ErrGenerationUnavailable,
			wantStage: workflow.Rerank,
		},
		{
			name: "empty rewrite",
			gen: fixedGen(map[string]string{
				stageRewrite: "   ",
			}),
			ret:       staticRetriever("doc"),
			wantErr:   domain.ErrGenerationUnavailable,
			wantStage: workflow.Rewrite,
		},
		{
			name: "empty answer",
			gen: fixedGen(map[string]string{
				stageRewrite:  "q",
				stageClassify: "on-topic",
				stageRerank:   "doc",
				stageAnswer:   "",
			}),
			ret:       staticRetriever("doc"),
			wantErr:   domain.ErrGenerationUnavailable,
			wantStage: workflow.Generate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, tt.gen, tt.ret)

			answer, err := s.Answer(context.Background(), "What tasks are Michael involved in?")
			assert.Equal(t, ProcessEnded, answer)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var se *workflow.StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantStage, se.Stage)
		})
	}
}

func TestRetrievalFailureSkipsLaterStages(t *testing.T) {
	gen := fixedGen(michaelReplies)
	ret := &fakeRetriever{docs: func(string) ([]domain.Document, error) {
		return nil, errors.New("index offline")
	}}
	s := newService(t, gen, ret)

	res, err := s.Run(context.Background(), "What tasks are Michael involved in?")
	require.Error(t, err)
	assert.Equal(t, []string{stageRewrite}, gen.calls)
	assert.Equal(t, []workflow.StageID{workflow.Rewrite, workflow.Retrieve}, res.Path)
	assert.Empty(t, res.State.LLMOutput)
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	gen := fixedGen(michaelReplies)
	s := newService(t, gen, staticRetriever("doc"))

	_, err := s.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrMalformedState)
	assert.Empty(t, gen.calls)
}

func TestRunCancelled(t *testing.T) {
	gen := fixedGen(michaelReplies)
	s := newService(t, gen, staticRetriever("doc"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer, err := s.Answer(ctx, "What tasks are Michael involved in?")
	assert.Equal(t, ProcessEnded, answer)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gen.calls)
}

func TestStagesRejectMalformedState(t *testing.T) {
	s := newService(t, fixedGen(michaelReplies), staticRetriever("doc"))
	ctx := context.Background()

	_, err := s.classify(ctx, domain.QueryState{Question: "q", Classification: domain.OnTopic})
	assert.ErrorIs(t, err, domain.ErrMalformedState)

	_, err = s.answer(ctx, domain.QueryState{Question: "q", LLMOutput: "done"})
	assert.ErrorIs(t, err, domain.ErrMalformedState)

	_, err = s.offTopic(ctx, domain.QueryState{Question: "q", LLMOutput: "done"})
	assert.ErrorIs(t, err, domain.ErrMalformedState)
}

func TestRunLogsClassification(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newService(t, fixedGen(michaelReplies), staticRetriever("doc"), WithLogger(zap.New(core)))

	_, err := s.Run(context.Background(), "What tasks are Michael involved in?")
	require.NoError(t, err)

	classified := logs.FilterMessage("question classified").All()
	require.Len(t, classified, 1)
	fields := classified[0].ContextMap()
	assert.Equal(t, "on-topic", fields["classification"])
	assert.NotEmpty(t, fields["run_id"])

	assert.Equal(t, 5, logs.FilterMessage("stage finished").Len())
	assert.Equal(t, 1, logs.FilterMessage("traversal finished").Len())
}

type countingRecorder struct {
	mu        sync.Mutex
	stages    int
	finished  int
	failures  int
	lastState domain.QueryState
}

func (r *countingRecorder) StageStarted(context.Context, workflow.StageID) {}

func (r *countingRecorder) StageFinished(_ context.Context, _ workflow.StageID, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages++
}

func (r *countingRecorder) TraversalFinished(res workflow.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	r.lastState = res.State
	if err != nil {
		r.failures++
	}
}

func TestRecorderSeesTraversal(t *testing.T) {
	rec := &countingRecorder{}
	s := newService(t, fixedGen(michaelReplies), staticRetriever("doc"), WithRecorder(rec))

	_, err := s.Run(context.Background(), "What tasks are Michael involved in?")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.stages)
	assert.Equal(t, 1, rec.finished)
	assert.Zero(t, rec.failures)
	assert.Equal(t, domain.OnTopic, rec.lastState.Classification)
}

func TestAnswerAllRunsIndependently(t *testing.T) {
	gen := &scriptedGen{respond: func(stage, text string) (string, error) {
		switch stage {
		case stageRewrite:
			if strings.Contains(text, "Michael") {
				return "What is Michael working on?", nil
			}
			return "What is the weather on Mars?", nil
		case stageClassify:
			if strings.Contains(text, "Michael") {
				return "on-topic", nil
			}
			return "off-topic", nil
		case stageRerank:
			return "1st preference: Michael closes deals", nil
		default:
			return "Michael closes deals.", nil
		}
	}}
	ret := &fakeRetriever{docs: func(q string) ([]domain.Document, error) {
		if strings.Contains(q, "Mars") {
			return nil, errors.New("index offline")
		}
		return []domain.Document{{Content: "Michael closes deals"}}, nil
	}}
	s := newService(t, gen, ret, WithConcurrency(2))

	out := s.AnswerAll(context.Background(), []string{
		"What tasks are Michael involved in?",
		"What's the weather on Mars?",
	})
	require.Len(t, out, 2)

	assert.NoError(t, out[0].Err)
	assert.Equal(t, "Michael closes deals.", out[0].Answer)
	assert.Equal(t, workflow.Generate, out[0].Path[len(out[0].Path)-1])

	assert.ErrorIs(t, out[1].Err, domain.ErrRetrievalUnavailable)
	assert.Equal(t, ProcessEnded, out[1].Answer)
	assert.Equal(t, "What's the weather on Mars?", out[1].Question)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, staticRetriever())
	assert.Error(t, err)
}

func TestEmptyQuestionIsRecordedAsFailure(t *testing.T) {
	rec := &countingRecorder{}
	s := newService(t, fixedGen(michaelReplies), staticRetriever("doc"), WithRecorder(rec))

	res, err := s.Run(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMalformedState)
	assert.Equal(t, []workflow.StageID{workflow.Rewrite}, res.Path)
	assert.Equal(t, 1, rec.finished)
	assert.Equal(t, 1, rec.failures)
}
