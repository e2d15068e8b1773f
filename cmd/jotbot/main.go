// ABOUTME: Entry point for the jotbot hub server
// ABOUTME: Subcommands for serving, config generation, seeding users, and health checks

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/jotlab/jotbot/internal/classify"
	"github.com/jotlab/jotbot/internal/config"
	"github.com/jotlab/jotbot/internal/history"
	"github.com/jotlab/jotbot/internal/hub"
	"github.com/jotlab/jotbot/internal/integrations"
	"github.com/jotlab/jotbot/internal/server"
	"github.com/jotlab/jotbot/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
    _       _   _           _
   (_) ___ | |_| |__   ___ | |_
   | |/ _ \| __| '_ \ / _ \| __|
   | | (_) | |_| |_) | (_) | |_
  _/ |\___/ \__|_.__/ \___/ \__|
 |__/
`

// getConfigPath returns the path to the jotbot config file.
// Priority: JOTBOT_CONFIG env var > XDG_CONFIG_HOME/jotbot/jotbot.yaml > ~/.config/jotbot/jotbot.yaml
func getConfigPath() string {
	if envPath := os.Getenv("JOTBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "jotbot.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "jotbot", "jotbot.yaml")
}

// getDataPath returns the path to the jotbot data directory.
// Priority: XDG_DATA_HOME/jotbot > ~/.local/share/jotbot
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "jotbot")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: jotbot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the hub server")
		fmt.Println("  init                       Create a starter config file")
		fmt.Println("  seed --id ID --name NAME   Create a user (with optional credentials)")
		fmt.Println("  health                     Check hub health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "seed":
		err = runSeed(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting jotbot",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	var classifier classify.Classifier
	if cfg.Classifier.RulesPath != "" {
		classifier, err = classify.NewMatcherFromFile(cfg.Classifier.RulesPath)
		if err != nil {
			return fmt.Errorf("loading classifier rules: %w", err)
		}
	} else {
		classifier = classify.NewMatcher()
	}

	slack := integrations.NewSlackAPI(integrations.WithSlackChannel(cfg.Integrations.Slack.Channel))
	trello := integrations.NewTrelloAPI(integrations.WithTrelloListID(cfg.Integrations.Trello.ListID))
	dispatcher := integrations.NewDispatcher(slack, trello, logger)

	table := history.NewTable(cfg.History.Limit, logger)
	svc := hub.New(st, table, classifier, dispatcher, cfg.Billing.MessageFee, logger)

	return server.New(cfg.Server.HTTPAddr, svc, logger).Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// runSeed creates a user and optionally stores integration credentials,
// so a fresh install can send notes immediately:
//
//	jotbot seed --id u1 --name "Ada" --slack-token xoxb-... --trello-key k --trello-token t
func runSeed(ctx context.Context) error {
	var id, name, slackToken, trelloKey, trelloToken string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		flag := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", flag)
			}
			i++
			return args[i], nil
		}
		var err error
		switch flag {
		case "--id":
			id, err = value()
		case "--name":
			name, err = value()
		case "--slack-token":
			slackToken, err = value()
		case "--trello-key":
			trelloKey, err = value()
		case "--trello-token":
			trelloToken, err = value()
		default:
			return fmt.Errorf("unknown flag: %s", flag)
		}
		if err != nil {
			return err
		}
	}

	if id == "" || name == "" {
		return fmt.Errorf("--id and --name are required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	green := color.New(color.FgGreen)

	user := &store.User{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	if err := st.CreateUser(ctx, user); err == store.ErrDuplicate {
		fmt.Printf("  user %s already exists\n", id)
	} else if err != nil {
		return fmt.Errorf("creating user: %w", err)
	} else {
		green.Printf("  ✓ Created user: %s (%s)\n", name, id)
	}

	credentials := []struct {
		credType string
		value    string
	}{
		{store.CredentialSlackToken, slackToken},
		{store.CredentialTrelloKey, trelloKey},
		{store.CredentialTrelloToken, trelloToken},
	}
	for _, c := range credentials {
		if c.value == "" {
			continue
		}
		err := st.CreateCredential(ctx, &store.Credential{
			OwnerID: id,
			Type:    c.credType,
			Value:   c.value,
		})
		if err == store.ErrDuplicate {
			fmt.Printf("  credential %s already set\n", c.credType)
			continue
		}
		if err != nil {
			return fmt.Errorf("storing %s: %w", c.credType, err)
		}
		green.Printf("  ✓ Stored credential: %s\n", c.credType)
	}

	return nil
}

func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "jotbot.db")

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	configContent := fmt.Sprintf(`# jotbot configuration
# Generated by jotbot init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

billing:
  message_fee: 1

history:
  limit: 50

integrations:
  slack:
    channel: "#general"
  trello:
    list_id: ""

logging:
  level: "info"
  format: "text"
`, dbPath)

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("\nTo start the server:")
	fmt.Println("  jotbot serve")

	return nil
}
