// Command rag answers questions about the sales-report corpus with a
// rewrite, retrieve, classify, rerank and generate workflow.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// cfgPath overrides the config lookup (./config.yaml, then ~/.config/ragflow/config.yaml)
	cfgPath string
	// verbose forces debug logging
	verbose bool
	// metricsFile receives the Prometheus text exposition after each command
	metricsFile string
	version     = "dev"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Answer questions with a retrieval-augmented workflow",
	Long: `rag rewrites a question, retrieves supporting passages, checks that they
are on topic, reranks them and generates a grounded answer.

The generation backend is picked by the LLM_TYPE environment variable
(ollama or openai) or by llm.type in the config file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
}
