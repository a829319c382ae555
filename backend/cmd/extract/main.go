package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"linkboard/backend/internal/adapter"
	"linkboard/backend/internal/graph"
	"linkboard/backend/internal/merge"
	"linkboard/backend/internal/prompt"
	"linkboard/backend/internal/session"
	"linkboard/backend/internal/sourcetext"
	"linkboard/backend/pkg/config"
	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

type runOptions struct {
	file      string
	url       string
	html      bool
	acceptAll bool
	commit    bool
	asJSON    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract entities and relationships from text into the link board",
		Long: `extract sends source text to the configured model, prints the proposed
entities and relationships, and can merge them into the board graph.

Configuration is read from the environment and .env, like the server.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug|info|warn|error")

	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Extract proposals from a file, a URL or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(logLevel)
			if err != nil {
				return err
			}
			if opts.commit && !opts.acceptAll {
				return fmt.Errorf("--commit requires --accept-all")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			text, err := readSource(ctx, opts, cmd.InOrStdin(), sourcetext.NewFetcher(nil))
			if err != nil {
				return err
			}

			store, err := graph.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sess := session.New(session.Options{
				Inferer:        adapter.NewLLMAdapter(),
				Store:          store,
				Merger:         merge.NewEngine(nil),
				Vocabulary:     prompt.DefaultVocabulary(),
				MaxSourceChars: cfg.MaxSourceChars,
			}, adapter.SettingsFromConfig(cfg))

			return extract(ctx, sess, text, opts, cmd.OutOrStdout())
		},
	}
	runCmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read source text from a file")
	runCmd.Flags().StringVarP(&opts.url, "url", "u", "", "Fetch source text from a web page")
	runCmd.Flags().BoolVar(&opts.html, "html", false, "Treat the file or stdin as HTML")
	runCmd.Flags().BoolVar(&opts.acceptAll, "accept-all", false, "Accept every proposal")
	runCmd.Flags().BoolVar(&opts.commit, "commit", false, "Merge accepted proposals into the board")
	runCmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the session snapshot as JSON")
	runCmd.MarkFlagsMutuallyExclusive("file", "url")

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the configured model endpoint is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(logLevel)
			if err != nil {
				return err
			}
			result, err := adapter.NewLLMAdapter().TestConnection(cmd.Context(), adapter.SettingsFromConfig(cfg))
			if err != nil {
				return errors.New(apperrors.UserMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s at %s\n", cfg.AIModel, cfg.AIEndpoint)
			for _, m := range result.Models {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", m)
			}
			return nil
		},
	}

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the board graph as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(logLevel)
			if err != nil {
				return err
			}
			store, err := graph.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			g, err := store.ReadGraph(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(g)
		},
	}

	rootCmd.AddCommand(runCmd, probeCmd, graphCmd)
	return rootCmd
}

func setup(logLevel string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Env, logLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readSource loads the source text named by opts, falling back to stdin
func readSource(ctx context.Context, opts runOptions, stdin io.Reader, fetcher *sourcetext.Fetcher) (string, error) {
	if opts.url != "" {
		return fetcher.Fetch(ctx, opts.url)
	}

	r := stdin
	if opts.file != "" {
		f, err := os.Open(opts.file)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}

	if opts.html {
		return sourcetext.FromHTML(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// extract runs one extraction and reports it to out. A cancelled request
// ends quietly with no error.
func extract(ctx context.Context, sess *session.Session, text string, opts runOptions, out io.Writer) error {
	defer sess.Close()

	if err := sess.SetText(text); err != nil {
		return err
	}
	if err := sess.Run(ctx); err != nil {
		if apperrors.IsCancelled(err) {
			return nil
		}
		return errors.New(apperrors.UserMessage(err))
	}

	if opts.acceptAll {
		if err := sess.AcceptAll(); err != nil {
			return err
		}
	}

	// taken before commit, which closes the session
	snap := sess.Snapshot()

	var result *merge.Result
	if opts.commit {
		r, err := sess.Commit(ctx)
		if err != nil {
			return errors.New(apperrors.UserMessage(err))
		}
		result = r
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if result != nil {
			return enc.Encode(map[string]interface{}{"result": result, "session": snap})
		}
		return enc.Encode(snap)
	}

	printProposals(out, snap)
	if result != nil {
		fmt.Fprintf(out, "\ncommitted: %d nodes created, %d reused, %d edges created, %d skipped\n",
			result.NodesCreated, result.NodesReused, result.EdgesCreated, result.EdgesSkipped)
	}
	return nil
}

func printProposals(out io.Writer, snap session.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tTYPE\tDETAILS\tSTATE")
	for _, n := range snap.Nodes {
		details := strings.TrimSpace(strings.Join([]string{n.Role, n.Metadata}, " "))
		if n.Duplicate {
			details = strings.TrimSpace(details + " (on board)")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.Label, n.NodeType, details, n.ReviewState)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EDGE\tLABEL\tCONFIDENCE\tSTATE")
	for _, e := range snap.Edges {
		fmt.Fprintf(w, "%s -> %s\t%s\t%s\t%s\n", e.SourceLabel, e.TargetLabel, e.DisplayLabel(), e.Confidence, e.ReviewState)
	}
	w.Flush()
}
