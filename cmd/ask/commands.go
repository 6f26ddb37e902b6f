package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"filings-rag-be/internal/bootstrap"
	"filings-rag-be/internal/config"
	"filings-rag-be/internal/model"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/repository/specification"
	"filings-rag-be/pkg/events"
	"filings-rag-be/pkg/graph"
	pktNats "filings-rag-be/pkg/nats"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/session"
	"filings-rag-be/pkg/utils"
)

const (
	chunkSize    = 1500
	chunkOverlap = 200
)

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "filings-rag",
		Short: "Ask questions about indexed financial filings",
		Long: strings.TrimSpace(`filings-rag runs the retrieval workflow from the terminal.

It shares configuration (.env, RAG_* variables) and session storage with the
HTTP server, so sessions started here can be continued over the API.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newAskCommand())
	root.AddCommand(newSessionsCommand())
	root.AddCommand(newIndexCommand())
	root.AddCommand(newEventsCommand())
	return root
}

// loadContainer wires the application with logging sent to the log file only.
func loadContainer(ctx context.Context) (*bootstrap.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return bootstrap.NewContainer(ctx, cfg, logger.NewFileLogger(cfg.App.LogFilePath))
}

func newAskCommand() *cobra.Command {
	var (
		sessionID string
		userID    string
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question, or start an interactive session without arguments",
		Example: strings.Join([]string{
			`  filings-rag ask "What was Tesla's revenue in 2023?"`,
			"  filings-rag ask --user alice --progress",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := loadContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			defer c.Registry.Flush(context.Background())

			if userID == "" {
				userID = session.DefaultUser
			}
			out := cmd.OutOrStdout()
			asker := func(question string) error {
				var opts []graph.Option
				if progress {
					opts = append(opts, graph.WithObserver(progressPrinter(cmd.ErrOrStderr())))
				}
				res, err := c.Registry.Invoke(ctx, session.InvokeRequest{
					Question:  question,
					SessionID: sessionID,
					UserID:    userID,
				}, opts...)
				if err != nil {
					return err
				}
				sessionID = res.SessionInfo.SessionID
				printResult(out, res)
				return nil
			}

			if len(args) > 0 {
				return asker(strings.Join(args, " "))
			}
			return interactive(ctx, cmd.InOrStdin(), out, asker)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to continue (derived from user and date when empty)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id used to derive the session id")
	cmd.Flags().BoolVarP(&progress, "progress", "p", false, "Print workflow nodes as they finish")
	return cmd
}

// interactive reads one question per line until EOF or "exit". Failed
// questions are reported and the loop continues.
func interactive(ctx context.Context, in io.Reader, out io.Writer, ask func(string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		headerColor.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := ask(line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printError(out, err)
		}
		fmt.Fprintln(out)
	}
}

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and maintain stored sessions",
	}

	var user string
	list := &cobra.Command{
		Use:   "list",
		Short: "List active and persisted sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			infos, err := c.Registry.List(cmd.Context(), user)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	list.Flags().StringVarP(&user, "user", "u", "", "Only sessions of this user")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			sum, err := c.Registry.Summary(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}

	reset := &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Clear a session's memory and delete its stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Registry.Reset(cmd.Context(), args[0], ""); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "session %s reset\n", args[0])
			return nil
		},
	}

	var days int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete persisted sessions inactive for the given number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			report, err := c.Registry.Cleanup(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "removed %d persisted session(s), closed %d idle\n",
				report.PersistedRemoved, report.IdleClosed)
			return nil
		},
	}
	cleanup.Flags().IntVarP(&days, "days", "d", 30, "Retention in days")

	cmd.AddCommand(list, show, reset, cleanup)
	return cmd
}

func newIndexCommand() *cobra.Command {
	var (
		collection string
		company    string
	)

	cmd := &cobra.Command{
		Use:   "index <file>...",
		Short: "Chunk, embed and store plain-text filings or image captions",
		Example: strings.Join([]string{
			"  filings-rag index --company Tesla tsla-10k-2023.txt",
			"  filings-rag index --collection image --company Tesla captions.txt",
		}, "\n"),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if collection != string(port.CollectionText) && collection != string(port.CollectionImage) {
				return fmt.Errorf("--collection must be %q or %q", port.CollectionText, port.CollectionImage)
			}
			ctx := cmd.Context()
			c, err := loadContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			for _, path := range args {
				chunks, err := buildChunks(ctx, c, path, collection, company)
				if err != nil {
					return err
				}
				if err := c.ChunkRepo.CreateBulk(ctx, chunks); err != nil {
					return fmt.Errorf("store %s: %w", path, err)
				}
				okColor.Fprintf(cmd.OutOrStdout(), "%s: %d chunk(s)\n", path, len(chunks))
			}

			total, err := c.ChunkRepo.Count(ctx, specification.ByCollection{Collection: collection})
			if err != nil {
				return err
			}
			dimColor.Fprintf(cmd.OutOrStdout(), "%s collection now holds %d chunk(s)\n", collection, total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", string(port.CollectionText), "Target collection: text or image")
	cmd.Flags().StringVar(&company, "company", "", "Company the filing belongs to")
	return cmd
}

func buildChunks(ctx context.Context, c *bootstrap.Container, path, collection, company string) ([]*model.FilingChunk, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := filepath.Base(path)
	var pieces []string
	if collection == string(port.CollectionImage) {
		// One caption per line.
		pieces = nonEmptyLines(string(raw))
	} else {
		pieces = utils.SplitText(string(raw), chunkSize, chunkOverlap)
	}

	chunks := make([]*model.FilingChunk, 0, len(pieces))
	for i, text := range pieces {
		vec, err := c.Embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed %s chunk %d: %w", source, i, err)
		}
		meta, err := json.Marshal(map[string]interface{}{
			"company":     company,
			"source_file": source,
			"chunk_index": i,
		})
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &model.FilingChunk{
			Id:         uuid.New(),
			Collection: collection,
			Company:    company,
			SourceFile: source,
			Content:    text,
			Metadata:   datatypes.JSON(meta),
			Embedding:  pgvector.NewVector(vec),
		})
	}
	return chunks, nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Observe domain events published by the server",
	}

	var eventType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events as they are published until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.App.NatsURL == "" {
				return errors.New("NATS_URL is not set")
			}
			sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, logger.NewFileLogger(cfg.App.LogFilePath))
			if err != nil {
				return err
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			err = sub.Subscribe(cmd.Context(), eventType, "", func(_ context.Context, ev events.Event) error {
				printEvent(out, ev)
				return nil
			})
			if err != nil {
				return err
			}
			dimColor.Fprintf(out, "listening on %s\n", pktNats.Subject(eventType))
			<-cmd.Context().Done()
			return nil
		},
	}
	tail.Flags().StringVarP(&eventType, "type", "t", ">", "Event type filter, NATS wildcards allowed")

	cmd.AddCommand(tail)
	return cmd
}

func printEvent(w io.Writer, ev events.Event) {
	routeColor.Fprintf(w, "%s ", ev.Timestamp().Local().Format(time.TimeOnly))
	headerColor.Fprintf(w, "%-16s", ev.EventType())
	payload := ev.Payload()
	keys := []string{"session_id", "route", "documents", "retries", "duration_ms"}
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			fmt.Fprintf(w, " %s=%v", k, v)
		}
	}
	fmt.Fprintln(w)
}
