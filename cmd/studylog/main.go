package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"studylog/internal/amqp"
	"studylog/internal/config"
	"studylog/internal/core"
	apphttp "studylog/internal/http"
	applog "studylog/internal/log"
	"studylog/internal/notify"
	"studylog/internal/services"
	"studylog/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "studylog",
		Short:         "Track study hours by category",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *applog.Logger {
	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)
	return logger
}

type app struct {
	cfg    *config.Config
	logger *applog.Logger
	repo   *storage.SQLiteRepository
	svc    *services.StudyService
}

// openApp builds the local service stack shared by every subcommand.
// The events publisher is only wired by serve; direct CLI writes stay local.
func openApp(events services.EventPublisher) (*app, error) {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	repo, err := storage.New(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", cfg.SQLiteDBPath, err)
	}

	svc := services.NewStudyService(repo, notify.New(logger), events, logger, services.Options{
		Categories: cfg.Categories,
		WeekStart:  cfg.WeekStart,
	})
	return &app{cfg: cfg, logger: logger, repo: repo, svc: svc}, nil
}

func (a *app) close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("closing storage", applog.FieldError, err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}

			repo, err := storage.New(cfg.SQLiteDBPath)
			if err != nil {
				return fmt.Errorf("open storage at %s: %w", cfg.SQLiteDBPath, err)
			}
			defer repo.Close()

			// The AMQP pipeline is optional; without a broker URL the
			// server runs standalone and skips change events.
			var events services.EventPublisher
			if cfg.AMQPURL != "" {
				client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
				if err != nil {
					return fmt.Errorf("connect AMQP: %w", err)
				}
				defer client.Close()
				events = client
				logger.Info("AMQP pipeline enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			} else {
				logger.Info("AMQP pipeline disabled - no AMQP_URL provided")
			}

			svc := services.NewStudyService(repo, notify.New(logger), events, logger, services.Options{
				Categories: cfg.Categories,
				WeekStart:  cfg.WeekStart,
			})

			srv := apphttp.NewServer(":"+cfg.Port, svc, logger)
			srv.ReadTimeout = 10 * time.Second
			srv.IdleTimeout = 60 * time.Second
			srv.MaxHeaderBytes = 1 << 16 // 64KB

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("starting server",
					applog.FieldOperation, applog.OpStartup,
					"port", cfg.Port,
					"db", cfg.SQLiteDBPath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down", applog.FieldOperation, applog.OpShutdown)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return fmt.Errorf("server: %w", err)
			}
			logger.Info("server stopped gracefully")
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var dateStr string

	cmd := &cobra.Command{
		Use:   "add [category] [hours]",
		Short: "Record study hours for a date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("hours must be a number: %q", args[1])
			}

			date := core.DateOf(time.Now())
			if dateStr != "" {
				date, err = core.ParseDate(dateStr)
				if err != nil {
					return err
				}
			}

			a, err := openApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.svc.RecordHours(cmd.Context(), date, core.Category(args[0]), hours)
			if err != nil {
				return err
			}

			fmt.Printf("Recorded %gh of %s on %s (entry %s)\n", hours, args[0], date, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "date in YYYY-MM-DD form (default today)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [entry-id] [index]",
		Short: "Delete the hour record at a position within an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil || index < 0 {
				return fmt.Errorf("index must be a non-negative integer: %q", args[1])
			}

			a, err := openApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.svc.DeleteHour(cmd.Context(), args[0], index); err != nil {
				return err
			}

			fmt.Printf("Deleted record %d of entry %s\n", index, args[0])
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show weekly, monthly and all-time totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			totals, err := a.svc.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			printTotals(a.svc.Categories(), totals)
			return nil
		},
	}
}

func printTotals(categories []core.Category, totals core.ProgressTotals) {
	fmt.Printf("%-12s %8s %8s %10s\n", "category", "week", "month", "all-time")
	for _, c := range categories {
		fmt.Printf("%-12s %8.1f %8.1f %10.1f\n", c, totals.Weekly[c], totals.Monthly[c], totals.AllTime[c])
	}
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every entry and all totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}

			a, err := openApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.svc.Reset(cmd.Context()); err != nil {
				return err
			}

			fmt.Println("All entries and totals deleted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func watchCmd() *cobra.Command {
	var (
		serverURL string
		dateStr   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream entry and totals updates from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if serverURL == "" {
				serverURL = "http://localhost:" + cfg.Port
			}
			eventsURL := serverURL + "/api/events"
			if dateStr != "" {
				if _, err := core.ParseDate(dateStr); err != nil {
					return err
				}
				eventsURL += "?date=" + dateStr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, eventsURL, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", eventsURL, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}

			fmt.Println("Watching for changes (Ctrl-C to stop)...")
			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			var event string
			for scanner.Scan() {
				line := scanner.Text()
				switch {
				case strings.HasPrefix(line, "event: "):
					event = strings.TrimPrefix(line, "event: ")
				case strings.HasPrefix(line, "data: "):
					printEvent(event, strings.TrimPrefix(line, "data: "))
				}
			}
			if ctx.Err() != nil {
				return nil
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "", "server base URL (default http://localhost:$PORT)")
	cmd.Flags().StringVar(&dateStr, "date", "", "only watch the entry for this date")
	return cmd
}

func printEvent(event, data string) {
	switch event {
	case "entries":
		var entries []core.StudyEntry
		if err := json.Unmarshal([]byte(data), &entries); err != nil {
			fmt.Println("bad entries event:", err)
			return
		}
		fmt.Printf("%d entries:\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  %s  %5.1fh  (%d records, id %s)\n",
				e.Date, e.TotalHours(), len(e.HourRecords), e.ID)
		}
	case "totals":
		var totals core.ProgressTotals
		if err := json.Unmarshal([]byte(data), &totals); err != nil {
			fmt.Println("bad totals event:", err)
			return
		}
		cats := make([]core.Category, 0, len(totals.AllTime))
		for c := range totals.AllTime {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
		printTotals(cats, totals)
	case "error":
		fmt.Println("server error event:", data)
	}
}
