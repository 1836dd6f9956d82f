package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nestauk/discovery-genai/internal/builder"
	"github.com/nestauk/discovery-genai/internal/generator"
	"github.com/nestauk/discovery-genai/internal/prompt"
)

type generateOptions struct {
	templates      []string
	set            map[string]string
	setList        map[string]string
	model          string
	temperature    float64
	maxTokens      int
	retrieval      bool
	k              int
	injection      string
	requestTmpl    string
	system         string
	user           string
	stripReasoning bool
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate [request...]",
		Short: "Generate text for one request (use - to read it from stdin)",
		Example: `  genai generate --set location=Outdoors --set-list areas_of_learning="Mathematics;Literacy" "Rock pools"
  genai generate --template eli3 --request-template "" "Why is the sky blue?"
  genai generate --system "Be brief." --user "Answer in French." "What is a tide?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := readRequest(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runGenerate(cmd, root, opts, request)
		},
	}

	bindGenerateFlags(cmd.Flags(), opts)
	return cmd
}

func bindGenerateFlags(f *pflag.FlagSet, opts *generateOptions) {
	f.StringArrayVarP(&opts.templates, "template", "t", nil, "Template ref, repeatable (default from templates.refs)")
	f.StringToStringVar(&opts.set, "set", nil, "Placeholder value, key=value")
	f.StringToStringVar(&opts.setList, "set-list", nil, "List placeholder, key=a;b;c")
	f.StringVarP(&opts.model, "model", "m", "", "Model name (default llm.model)")
	f.Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature in [0, 2]")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "Completion token limit")
	f.BoolVar(&opts.retrieval, "retrieval", false, "Ground the prompt with corpus documents")
	f.IntVarP(&opts.k, "k", "k", 0, "Documents to retrieve")
	f.StringVar(&opts.injection, "injection", "", "Where retrieved text goes: before_request or after_system")
	f.StringVar(&opts.requestTmpl, "request-template", "", "Template ref wrapping the request ({request}); empty sends it verbatim")
	f.StringVar(&opts.system, "system", "", "Custom system prompt; replaces the template set")
	f.StringVar(&opts.user, "user", "", "Custom user prompt; replaces the template set")
	f.BoolVar(&opts.stripReasoning, "strip-reasoning", false, "Drop <think> blocks from the reply")
}

func readRequest(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read request: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

// apply overrides gc with every flag the user actually set.
func (o *generateOptions) apply(cmd *cobra.Command, gc *generator.Config) error {
	f := cmd.Flags()
	if f.Changed("template") {
		gc.TemplateRefs = o.templates
	}
	if len(o.set) > 0 || len(o.setList) > 0 {
		merged := make(map[string]any, len(gc.Placeholders)+len(o.set)+len(o.setList))
		for k, v := range gc.Placeholders {
			merged[k] = v
		}
		for k, v := range o.set {
			merged[k] = v
		}
		for k, v := range o.setList {
			merged[k] = splitList(v)
		}
		gc.Placeholders = merged
	}
	if f.Changed("model") {
		gc.Model = o.model
	}
	if f.Changed("temperature") {
		gc.Temperature = o.temperature
	}
	if f.Changed("max-tokens") {
		gc.MaxTokens = o.maxTokens
	}
	if f.Changed("retrieval") {
		gc.UseRetrieval = o.retrieval
	}
	if f.Changed("k") {
		gc.K = o.k
	}
	if f.Changed("injection") {
		inj, err := generator.ParseInjection(o.injection)
		if err != nil {
			return err
		}
		gc.Injection = inj
	}
	if f.Changed("request-template") {
		gc.RequestTemplate = o.requestTmpl
	}
	if f.Changed("strip-reasoning") {
		gc.StripReasoning = o.stripReasoning
	}
	if o.system != "" || o.user != "" {
		gc.Custom = prompt.Custom(o.system, o.user)
		gc.TemplateRefs = nil
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runGenerate(cmd *cobra.Command, root *rootOptions, opts *generateOptions, request string) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	app, err := builder.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	gc, err := app.GeneratorConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, &gc); err != nil {
		return err
	}

	if gc.UseRetrieval && cfg.Vector.Backend != "qdrant" {
		if cfg.Corpus.Path == "" {
			return fmt.Errorf("--retrieval needs corpus.path or the qdrant backend")
		}
		if _, err := app.LoadCorpus(ctx, afero.NewOsFs()); err != nil {
			return fmt.Errorf("index corpus: %w", err)
		}
	}

	text, err := app.Generator.Generate(ctx, request, gc)
	if err != nil {
		logger.Debug("generation failed", zap.String("stage", string(generator.StageOf(err))))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
