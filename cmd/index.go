package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/knowledge"
	"github.com/teemow/inboxreply/internal/logging"
)

// knowledgeExtensions are the file types picked up when a directory is indexed.
var knowledgeExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var (
		ifEmpty bool
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "index [file|dir]...",
		Short: "Index knowledge files for retrieval",
		Long: `Chunk, embed and store knowledge files in Postgres (pgvector).

Each file replaces the chunks previously stored under its base name.
Directories are walked for .md and .txt files. With --if-empty nothing is
indexed when the knowledge base already holds chunks, which makes the
command safe to run at every deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !list {
				return fmt.Errorf("at least one file or directory is required")
			}

			cfg, err := loadConfig(cmd, opts, map[string]string{
				"chunk-size":    "knowledge.chunk_size",
				"chunk-overlap": "knowledge.chunk_overlap",
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(ctx); err != nil {
					a.logger.Warn("Error during shutdown", logging.Err(err))
				}
			}()

			store, err := a.knowledge(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				sources, err := store.Sources(ctx)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(sources))
				for name := range sources {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "%s\t%d\n", name, sources[name])
				}
				return nil
			}

			if ifEmpty {
				n, err := store.Count(ctx)
				if err != nil {
					return err
				}
				if n > 0 {
					fmt.Fprintf(out, "Knowledge base already holds %d chunks; skipping\n", n)
					return nil
				}
			}

			files, err := collectKnowledgeFiles(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no .md or .txt files found")
			}

			llmc, err := a.llm(ctx)
			if err != nil {
				return err
			}
			indexer := knowledge.NewIndexer(store, llmc, cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap, a.logger)

			total := 0
			for _, path := range files {
				n, err := indexer.IndexFile(ctx, path)
				if err != nil {
					return err
				}
				total += n
				fmt.Fprintf(out, "%s\t%d chunks\n", path, n)
			}
			fmt.Fprintf(out, "Indexed %d files, %d chunks\n", len(files), total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifEmpty, "if-empty", false, "Only index when the knowledge base is empty")
	cmd.Flags().BoolVar(&list, "list", false, "List indexed sources and their chunk counts")
	cmd.Flags().Int("chunk-size", 0, "Maximum chunk size in characters (default from config: 1200)")
	cmd.Flags().Int("chunk-overlap", 0, "Characters shared between adjacent chunks (default from config: 200)")

	return cmd
}

// collectKnowledgeFiles expands directories into the knowledge files they
// contain. Explicit file arguments are kept whatever their extension.
func collectKnowledgeFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if knowledgeExtensions[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	return files, nil
}
