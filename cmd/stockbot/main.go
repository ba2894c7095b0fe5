package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stockbot/internal/bot"
	"stockbot/internal/config"
	"stockbot/internal/db"
	"stockbot/internal/erp"
	"stockbot/internal/events"
	"stockbot/internal/flow"
	"stockbot/internal/migrate"
	"stockbot/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "stockbot",
	Short: "Telegram warehouse bot for ERPNext",
	Long: `stockbot lets warehouse staff drive ERPNext stock documents from Telegram.
Staff link their own ERPNext API key pair once, then create Stock Entries,
Purchase Receipts and Delivery Notes through guided chat flows, browse items
and documents via inline search, and submit, cancel or delete documents with
action buttons. All state lives in a local SQLite database; every mutation
is appended to an audit log viewable with 'stockbot log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STOCKBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "stockbot.yml", "config file path")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(credsCmd())
	rootCmd.AddCommand(draftsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(migrateCmd())
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot with long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBot(cmd.Context(), func(ctx context.Context, b *bot.Bot) error {
				b.Log.Info().Str("bot", b.Describe()).Msg("long polling started")
				return b.Run(ctx)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot in webhook mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBot(cmd.Context(), func(ctx context.Context, b *bot.Bot) error {
				if b.Cfg.Telegram.WebhookURL == "" {
					return fmt.Errorf("telegram.webhook_url is required for webhook mode")
				}
				return b.Serve(ctx)
			})
		},
	}
}

func usersCmd() *cobra.Command {
	users := &cobra.Command{Use: "users", Short: "Inspect known users"}
	users.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users the bot has seen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "First name", "Last name", "Created"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Username, u.FirstName, u.LastName, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return users
}

func credsCmd() *cobra.Command {
	creds := &cobra.Command{Use: "creds", Short: "Inspect stored API credentials"}
	creds.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List credential status per user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCredentials(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User ID", "API key", "Status", "Updated"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.UserID, maskKey(c.APIKey), c.Status, c.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return creds
}

func draftsCmd() *cobra.Command {
	drafts := &cobra.Command{Use: "drafts", Short: "Inspect in-progress drafts"}
	drafts.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active document drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rows, err := r.ListDrafts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User ID", "Kind", "Stage", "Updated"})
				for _, d := range rows {
					tw.AppendRow(table.Row{d.UserID, d.Draft.Kind, d.Draft.Stage, d.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return drafts
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Audit log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEvents(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "User ID", "Entity"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.UserID, e.Entity})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Path: dbPath()})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Apply(conn)
			if err != nil {
				return err
			}
			if applied == 0 {
				fmt.Println("database is up to date")
				return nil
			}
			fmt.Printf("applied %d migration(s)\n", applied)
			return nil
		},
	}
}

// --- helpers ---

func dbPath() string {
	if p := viper.GetString("db"); p != "" {
		return p
	}
	if cfg, err := config.Load(viper.GetString("config")); err == nil {
		return cfg.DB.Path
	}
	return db.DefaultPath()
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Path: dbPath()})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func withBot(ctx context.Context, fn func(context.Context, *bot.Bot) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	if p := viper.GetString("db"); p != "" {
		cfg.DB.Path = p
	}
	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Path: cfg.DB.Path})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	ev := events.Writer{DB: conn}
	gw := &erp.Gateway{
		BaseURL:        cfg.ERP.BaseURL,
		VerifyEndpoint: cfg.ERP.VerifyEndpoint,
		Company:        cfg.ERP.Company,
		Client:         &http.Client{},
		Log:            log.With().Str("component", "erp").Logger(),
		ReadTimeout:    cfg.ERP.ReadTimeout,
		WriteTimeout:   cfg.ERP.WriteTimeout,
	}
	fl := flow.New(r, ev, gw, cfg, log.With().Str("component", "flow").Logger())
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	b := bot.New(api, fl, cfg, log.With().Str("component", "bot").Logger())
	return fn(ctx, b)
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl), nil
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
