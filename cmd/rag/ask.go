package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"ragflow/internal/console"
	"ragflow/internal/logging"
)

// DefaultQuestion is asked when none is given.
const DefaultQuestion = "What tasks are Michael involved in?"

var extraQuestions []string

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Answer one or more questions",
	Long: `Answer a question and print every workflow step.

Examples:
  # Ask the default question
  rag ask

  # Ask a specific question
  rag ask What did Jane Smith close last week?

  # Ask several questions concurrently
  rag ask -q "Who is John Doe?" -q "What is Michael working on?"`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringArrayVarP(&extraQuestions, "question", "q", nil, "additional question (repeatable)")
}

func questionsFrom(args, extra []string) []string {
	var qs []string
	if q := strings.TrimSpace(strings.Join(args, " ")); q != "" {
		qs = append(qs, q)
	}
	for _, q := range extra {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
	}
	if len(qs) == 0 {
		qs = []string{DefaultQuestion}
	}
	return qs
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	printer := console.New(cmd.OutOrStdout(), 0)
	a, err := newApp(ctx, printer, logging.New)
	if err != nil {
		return err
	}
	defer a.close()

	questions := questionsFrom(args, extraQuestions)
	if len(questions) == 1 {
		answer, err := a.svc.Answer(ctx, questions[0])
		printer.Section("Final answer: " + answer)
		return err
	}
	return answerAll(ctx, a, printer, questions)
}

func answerAll(ctx context.Context, a *app, printer *console.Printer, questions []string) error {
	var errs []error
	for _, o := range a.svc.AnswerAll(ctx, questions) {
		printer.Section(fmt.Sprintf("Question: %s\nFinal answer: %s", o.Question, o.Answer))
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", o.Question, o.Err))
		}
	}
	return errors.Join(errs...)
}
