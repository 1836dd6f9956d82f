package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nestauk/discovery-genai/internal/builder"
	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/prompt"
	"github.com/nestauk/discovery-genai/internal/template"
)

func newPromptCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Inspect prompt templates",
	}
	cmd.AddCommand(newPromptShowCmd(root), newPromptListCmd(root))
	return cmd
}

func newPromptShowCmd(root *rootOptions) *cobra.Command {
	var (
		refs    []string
		set     map[string]string
		setList map[string]string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the composed prompt grouped by role",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if !cmd.Flags().Changed("template") {
				refs = cfg.Templates.Refs
			}
			values := make(map[string]any, len(cfg.Templates.Placeholders)+len(set)+len(setList))
			for k, v := range cfg.Templates.Placeholders {
				values[k] = v
			}
			for k, v := range set {
				values[k] = v
			}
			for k, v := range setList {
				values[k] = splitList(v)
			}

			store := builder.Templates(cfg.Templates.Dir)
			var templates []template.Template
			for _, ref := range refs {
				ts, err := store.LoadAll(ref)
				if err != nil {
					return err
				}
				templates = append(templates, ts...)
			}

			conv, err := prompt.Compose(templates, values)
			if err != nil {
				return fmt.Errorf("%w (required placeholders: %s)", err, strings.Join(prompt.Required(templates), ", "))
			}
			printByRole(cmd.OutOrStdout(), conv)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&refs, "template", "t", nil, "Template ref, repeatable (default templates.refs)")
	cmd.Flags().StringToStringVar(&set, "set", nil, "Placeholder value, key=value")
	cmd.Flags().StringToStringVar(&setList, "set-list", nil, "List placeholder, key=a;b;c")
	return cmd
}

func printByRole(w io.Writer, conv llm.Conversation) {
	for _, role := range []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		contents := prompt.ContentsByRole(conv, role)
		if len(contents) == 0 {
			continue
		}
		fmt.Fprintf(w, "=== %s ===\n", role)
		for _, c := range contents {
			fmt.Fprintln(w, c)
			fmt.Fprintln(w)
		}
	}
}

func newPromptListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available template refs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			out := cmd.OutOrStdout()
			builtin, err := template.Builtin().Refs()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Built-in templates:")
			for _, ref := range builtin {
				fmt.Fprintf(out, "  %s\n", ref)
			}

			if cfg.Templates.Dir == "" {
				return nil
			}
			local, err := template.NewDirStore(cfg.Templates.Dir).Refs()
			if err != nil {
				return err
			}
			sort.Strings(local)
			fmt.Fprintf(out, "\nTemplates in %s (take precedence):\n", cfg.Templates.Dir)
			for _, ref := range local {
				fmt.Fprintf(out, "  %s\n", ref)
			}
			return nil
		},
	}
}
