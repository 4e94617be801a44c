package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/catalog"
	"github.com/mike-a-ellis/docqa/internal/chat"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/source"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-directory>...",
	Short: "Index .txt and .md files",
	Long: `Indexes each file, or every .txt and .md file below each directory.

A document that is already indexed is replaced.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			for _, path := range args {
				if err := ingestPath(ctx, a, path); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func ingestPath(ctx context.Context, a *app.App, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		fmt.Printf("Indexing %s...\n", path)
		result, err := a.Pipeline.IngestAll(ctx, source.NewDir(path, catalog.SourceFile))
		if result != nil {
			printIndexResult(result)
		}
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := source.FromBytes(filepath.Base(path), catalog.SourceFile, data)
	if err != nil {
		return err
	}
	res, err := a.Pipeline.Ingest(ctx, doc)
	if err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}
	fmt.Printf("Indexed %s: %d chunks, %d entries in %s\n", res.Name, res.Chunks, res.Entries, res.Duration.Round(time.Millisecond))
	return nil
}

func printIndexResult(result *indexer.IndexResult) {
	fmt.Println()
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Name, failed.Reason)
		}
	}
}

var syncGitHubCmd = &cobra.Command{
	Use:   "sync-github",
	Short: "Index the configured GitHub repository path",
	Long: `Fetches every .txt and .md file below github.path in github.owner/github.repo
at github.ref and indexes it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			fetcher, err := a.GitHubFetcher()
			if err != nil {
				return err
			}
			gh := a.Config.GitHub
			fmt.Printf("Syncing %s/%s/%s@%s...\n", gh.Owner, gh.Repo, gh.Path, gh.Ref)
			sha, err := fetcher.GetLatestCommitSHA(ctx)
			if err != nil {
				return fmt.Errorf("get latest commit: %w", err)
			}

			result, err := a.Pipeline.IngestAll(ctx, fetcher)
			if result != nil {
				printIndexResult(result)
				fmt.Printf("  Commit: %s\n", sha)
			}
			return err
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Index a directory and re-index files as they change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			dir := a.Config.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no directory given and watch.dir is not configured")
			}

			result, err := a.Pipeline.IngestAll(ctx, source.NewDir(dir, catalog.SourceWatch))
			if result != nil {
				printIndexResult(result)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Watching %s (Ctrl+C to stop)...\n", dir)
			return a.Watcher(dir).Run(ctx)
		})
	},
}

var (
	askDocument string
	askSession  string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			resp, err := a.Chat.Ask(ctx, chat.Request{
				Message:   strings.Join(args, " "),
				DocName:   askDocument,
				SessionID: askSession,
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Reply)
			fmt.Fprintf(os.Stderr, "\nsession: %s\n", resp.SessionID)
			return nil
		})
	},
}

func init() {
	askCmd.Flags().StringVarP(&askDocument, "doc", "d", "", "restrict the answer to one document")
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "continue an existing chat session")
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document>",
	Short: "Remove a document from the index and the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			removed, err := a.Pipeline.Remove(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %s (%d index entries)\n", args[0], removed)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index, the documents and recent training runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			stats, err := a.Index.Stats(ctx)
			if err != nil {
				return err
			}
			docs, err := a.Catalog.ListDocuments(ctx)
			if err != nil {
				return err
			}
			runs, err := a.Catalog.ListRuns(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Index: %s, %d entries, dimension %d\n", stats.Backend, stats.Entries, stats.Dimension)
			fmt.Printf("Documents: %d\n", len(docs))
			for _, d := range docs {
				fmt.Printf("  - %s (%s, %d chunks, %s)\n", d.Name, d.Source, d.Chunks, d.IngestedAt.Format(time.DateTime))
			}
			if len(runs) > 0 {
				fmt.Println("Recent training runs:")
				for _, r := range runs[:min(len(runs), 5)] {
					line := fmt.Sprintf("  - %s %s, %d documents, %s", r.Timestamp.Format(time.DateTime), r.Status, len(r.Documents), r.Duration.Round(time.Millisecond))
					if r.Error != "" {
						line += ": " + r.Error
					}
					fmt.Println(line)
				}
			}
			return nil
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List chat sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			list, err := a.Sessions.List(ctx)
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Printf("%s  %s  %d messages\n", s.ID, s.Title, len(s.Messages))
			}
			return nil
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			s, err := a.Sessions.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(s.Title)
			for _, m := range s.Messages {
				fmt.Printf("\n[%s] %s:\n%s\n", m.Timestamp.Format(time.DateTime), m.Role, m.Content)
			}
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if err := a.Sessions.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted session %s\n", args[0])
			return nil
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsDeleteCmd)
}
