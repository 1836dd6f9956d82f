package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nestauk/discovery-genai/internal/builder"
	"github.com/nestauk/discovery-genai/internal/llm"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			names := builder.NewFactory().Names()

			fmt.Fprintln(out, "Available LLM providers:")
			fmt.Fprintln(out)
			for _, name := range names {
				url, ok := llm.KnownProviders[name]
				if !ok {
					url = "(set base_url to any OpenAI-compatible endpoint)"
				}
				fmt.Fprintf(out, "  %-14s %s\n", name, url)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configure in the config file or via environment:")
			fmt.Fprintln(out, "  GENAI_LLM_PROVIDER=groq")
			fmt.Fprintln(out, "  GENAI_LLM_API_KEY=gsk_...")
			fmt.Fprintln(out, "  GENAI_LLM_MODEL=llama-3.3-70b-versatile")
			fmt.Fprintln(out, "  GENAI_EMBEDDING_PROVIDER=openai")
		},
	}
}
