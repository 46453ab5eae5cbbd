package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/archie/internal/index"
)

// indexOutput is the JSON shape printed by `archie index`.
type indexOutput struct {
	Categories []string     `json:"categories"`
	Documents  []indexEntry `json:"documents"`
	Stats      *index.Stats `json:"stats"`
}

type indexEntry struct {
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Link     string   `json:"link,omitempty"`
}

func newIndexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "List the categories and documents of the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			categories, err := a.index.Categories(ctx)
			if err != nil {
				return err
			}
			docs, err := a.index.Documents(ctx)
			if err != nil {
				return err
			}
			stats, err := a.index.Stats(ctx)
			if err != nil {
				return err
			}

			out := indexOutput{Categories: categories, Documents: make([]indexEntry, 0, len(docs)), Stats: stats}
			for _, d := range docs {
				out.Documents = append(out.Documents, indexEntry{
					Path:     d.Path,
					Title:    d.Title,
					Category: d.Category,
					Tags:     d.Tags,
					Link:     a.index.Link(d.Path),
				})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		category string
		limit    int
		answer   bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search document titles, summaries and tags.

With --answer the query is treated as a question: the best matching
documents are handed to the configured oracle, which replies using only
their content.

Examples:
  archie search timeout
  archie search --category troubleshooting --limit 5 postgres
  archie search --answer "How do we rotate the database password?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if answer {
				orch, err := a.pipeline(false)
				if err != nil {
					return err
				}
				ans, err := orch.Answer(ctx, args[0], category, limit)
				if err != nil {
					return err
				}
				if ans.Sources == nil {
					ans.Sources = []index.SearchResult{}
				}
				return writeJSON(cmd.OutOrStdout(), ans)
			}

			results, err := a.index.Search(ctx, args[0], category, limit)
			if err != nil {
				return err
			}
			if results == nil {
				results = []index.SearchResult{}
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only search this category")
	cmd.Flags().IntVar(&limit, "limit", index.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&answer, "answer", false, "Answer the query as a question from the matching documents")
	return cmd
}
