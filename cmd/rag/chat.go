package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragflow/internal/console"
	"ragflow/internal/logging"
	"ragflow/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions in an interactive terminal UI",
	Long: `Open a terminal UI that answers each question with the full workflow
and shows the stages it went through.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Stage sections and stderr logs would corrupt the full-screen view.
		a, err := newApp(cmd.Context(), console.New(io.Discard, 0), logging.NewFileOnly)
		if err != nil {
			return err
		}
		defer a.close()

		m := tui.New(cmd.Context(), a.svc, "Backend: "+a.cfg.LLM.Type+" | retriever: "+a.cfg.Retriever.Type)
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}
