// Command lingopipe runs a live English tutoring session from the terminal:
// microphone in, tutor speech out, with the conversation transcript printed
// and optionally persisted to Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lingopipe/lingopipe/internal/dotenv"
	"github.com/lingopipe/lingopipe/pkg/core/live"
	"github.com/lingopipe/lingopipe/pkg/core/transcript"
	"github.com/lingopipe/lingopipe/pkg/metrics"
	"github.com/lingopipe/lingopipe/pkg/store"
)

type options struct {
	name        string
	level       string
	topic       string
	model       string
	voice       string
	databaseURL string
	metricsAddr string
	migrate     bool
	debug       bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	var opt options
	flag.StringVar(&opt.name, "name", "", "student name")
	flag.StringVar(&opt.level, "level", "beginner", "proficiency level: beginner, intermediate, advanced")
	flag.StringVar(&opt.topic, "topic", "", "conversation topic (optional)")
	flag.StringVar(&opt.model, "model", "", "live model override")
	flag.StringVar(&opt.voice, "voice", "", "tutor voice override")
	flag.StringVar(&opt.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL for transcript persistence (also reads DATABASE_URL)")
	flag.StringVar(&opt.metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (optional)")
	flag.BoolVar(&opt.migrate, "migrate", false, "apply database migrations and exit")
	flag.BoolVar(&opt.debug, "debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if opt.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}

	level, err := parseLevel(opt.level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *store.Store
	if opt.databaseURL != "" {
		db, err = store.New(ctx, opt.databaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		if opt.migrate {
			logger.Info("migrations applied")
			return 0
		}
		printRecentSessions(ctx, db, logger)
	} else if opt.migrate {
		fmt.Fprintln(os.Stderr, "error: -migrate requires -database-url")
		return 2
	}

	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "error: GEMINI_API_KEY is required")
		return 2
	}

	cfg := live.DefaultConfig()
	cfg.APIKey = apiKey
	cfg.UserName = opt.name
	cfg.Level = level
	cfg.Topic = opt.topic
	cfg.Logger = logger
	if opt.model != "" {
		cfg.Model = opt.model
	}
	if opt.voice != "" {
		cfg.Voice = opt.voice
	}
	if db != nil {
		cfg.Store = &storeAdapter{db: db}
	}
	if opt.metricsAddr != "" {
		cfg.Metrics = metrics.NewDefault()
		go serveMetrics(opt.metricsAddr, logger)
	}

	session := live.NewSession(cfg)
	if err := session.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer session.Disconnect()

	fmt.Println("Connected. Speak into the microphone; press Ctrl-C to end the session.")
	renderEvents(session)

	if serr := session.Err(); serr != nil && serr.Fatal() {
		fmt.Fprintln(os.Stderr, "error:", serr)
		return 1
	}
	return 0
}

// renderEvents prints the conversation as it unfolds and returns when the
// session ends.
func renderEvents(session *live.Session) {
	for event := range session.Events() {
		switch e := event.(type) {
		case *live.TranscriptUpdatedEvent:
			if len(e.Entries) == 0 {
				continue
			}
			last := e.Entries[len(e.Entries)-1]
			fmt.Printf("\r\033[K[%s] %s", last.Role, last.Text)

		case *live.TurnCommittedEvent:
			fmt.Println()
			for _, msg := range e.Messages {
				fmt.Printf("[%s] %s\n", msg.Role, msg.Text)
			}

		case *live.InterruptedEvent:
			fmt.Println("\n(interrupted)")

		case *live.ErrorEvent:
			if !e.Err.Fatal() {
				fmt.Fprintln(os.Stderr, "\nwarning:", e.Err)
			}

		case *live.SessionClosedEvent:
			fmt.Println("\nSession ended.")
		}
	}
}

func parseLevel(s string) (live.ProficiencyLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner", "a1", "a2":
		return live.LevelBeginner, nil
	case "intermediate", "b1", "b2":
		return live.LevelIntermediate, nil
	case "advanced", "c1", "c2":
		return live.LevelAdvanced, nil
	default:
		return "", fmt.Errorf("unknown level %q", s)
	}
}

func printRecentSessions(ctx context.Context, db *store.Store, logger *slog.Logger) {
	sessions, err := db.ListSessions(ctx, 5)
	if err != nil {
		logger.Warn("listing recent sessions", "error", err)
		return
	}
	if len(sessions) == 0 {
		return
	}
	fmt.Println("Recent sessions:")
	for _, s := range sessions {
		line := fmt.Sprintf("  %s  %s (%s)", s.CreatedAt.Format("2006-01-02 15:04"), s.Name, s.Level)
		if s.Topic != "" {
			line += ": " + s.Topic
		}
		fmt.Println(line)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server", "error", err)
	}
}

// storeAdapter bridges the persistence layer to the session's Store
// interface.
type storeAdapter struct {
	db *store.Store
}

func (a *storeAdapter) CreateSession(ctx context.Context, name string, level live.ProficiencyLevel, topic string) (string, error) {
	return a.db.CreateSession(ctx, name, string(level), topic)
}

func (a *storeAdapter) RecentHistory(ctx context.Context, limit int) ([]transcript.Message, error) {
	records, err := a.db.RecentHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	msgs := make([]transcript.Message, len(records))
	for i, r := range records {
		role := transcript.RoleTutor
		if r.IsUser {
			role = transcript.RoleUser
		}
		msgs[i] = transcript.Message{Role: role, Text: r.Text}
	}
	return msgs, nil
}

func (a *storeAdapter) SaveMessages(ctx context.Context, sessionID string, msgs []transcript.Message) error {
	records := make([]store.Message, len(msgs))
	for i, m := range msgs {
		records[i] = store.Message{
			Text:   m.Text,
			IsUser: m.Role == transcript.RoleUser,
		}
	}
	return a.db.InsertMessages(ctx, sessionID, records)
}
