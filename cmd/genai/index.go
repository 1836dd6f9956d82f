package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nestauk/discovery-genai/internal/builder"
)

func newIndexCmd(root *rootOptions) *cobra.Command {
	var corpusPath, textCol, sourceCol string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the corpus and build the vector index",
		Long: `Loads the corpus CSV, embeds every row and builds the index. With the
qdrant backend or vector.mirror set, the documents are also written to the
Qdrant collection so later runs can search it without re-embedding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			f := cmd.Flags()
			if f.Changed("corpus") {
				cfg.Corpus.Path = corpusPath
			}
			if f.Changed("text-column") {
				cfg.Corpus.TextColumn = textCol
			}
			if f.Changed("source-column") {
				cfg.Corpus.SourceColumn = sourceCol
			}
			if cfg.Corpus.Path == "" {
				return fmt.Errorf("no corpus: set corpus.path or --corpus")
			}

			ctx := cmd.Context()
			app, err := builder.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			if app.Qdrant != nil {
				app.Indexer.Mirror = app.Qdrant
			}

			idx, err := app.LoadCorpus(ctx, afero.NewOsFs())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d documents (dim %d, metric %s)\n", idx.Len(), idx.Dim(), idx.Config().Metric)
			if app.Qdrant != nil {
				fmt.Fprintf(out, "Mirrored to Qdrant collection %q\n", cfg.Vector.Collection)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "Corpus CSV path (default corpus.path)")
	cmd.Flags().StringVar(&textCol, "text-column", "", "Column holding document text")
	cmd.Flags().StringVar(&sourceCol, "source-column", "", "Column holding the document id")
	return cmd
}
