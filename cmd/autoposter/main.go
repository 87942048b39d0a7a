package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/AutoPoster/internal/autopost"
	"github.com/TobiSchelling/AutoPoster/internal/bot"
	"github.com/TobiSchelling/AutoPoster/internal/config"
	"github.com/TobiSchelling/AutoPoster/internal/server"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "autoposter",
	Short:   "Scheduled LinkedIn posts about tech news",
	Long:    "AutoPoster picks fresh tech news, writes a LinkedIn post about it with an LLM, and publishes it on a schedule.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnv(); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Logging.Debug() {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(accountsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autoposter", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/autoposter/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Put TELEGRAM_BOT_TOKEN, QWEN_API_KEY and the LinkedIn variables in the environment or a .env file.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show autopost settings and run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		s, _, err := a.autopost.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Autopost:")
		if s.Enabled {
			fmt.Println("  Enabled: yes")
		} else {
			fmt.Println("  Enabled: no")
		}
		fmt.Printf("  Interval: %d min\n", s.IntervalMinutes)
		fmt.Printf("  Style: %s\n", s.Style)
		if s.ChatID != nil {
			fmt.Printf("  Chat ID: %d\n", *s.ChatID)
		}
		if s.OwnerUserID != nil {
			fmt.Printf("  Owner user ID: %d\n", *s.OwnerUserID)
		}
		if s.LastRunEpoch != nil {
			fmt.Printf("  Last publish: %s\n", time.Unix(*s.LastRunEpoch, 0).UTC().Format(time.RFC3339))
		}
		if link := s.LastPostedLink(); link != "" {
			fmt.Printf("  Last posted news: %s\n", link)
		}

		stats, err := a.db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.TotalRuns)
		fmt.Printf("  Published: %d\n", stats.Published)
		fmt.Printf("  Failed: %d\n", stats.Failed)

		runs, err := a.db.RecentRuns(ctx, 5)
		if err != nil {
			return fmt.Errorf("getting recent runs: %w", err)
		}
		if len(runs) > 0 {
			fmt.Println("\nRecent:")
			for _, r := range runs {
				detail := deref(r.PostID)
				if r.Error != nil {
					detail = *r.Error
				}
				fmt.Printf("  %s  %-9s %-9s %s\n", r.StartedAt.Format("2006-01-02 15:04"), r.Trigger, r.Outcome, detail)
			}
		}
		return nil
	},
}

// --- serve command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, the Telegram bot and the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.autopost.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer func() {
			<-a.autopost.Stop().Done()
			log.Printf("Scheduler stopped")
		}()

		deps := server.Deps{Autopost: a.autopost, Journal: a.db, Notifier: a.notifier}
		if a.connector.Enabled() {
			deps.Connector = a.connector
		}
		srv, err := server.New(deps)
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		if a.botAPI != nil {
			b := &bot.Bot{
				Sender:          a.notifier,
				Autopost:        a.autopost,
				News:            a.aggregator,
				Sources:         a.resolver,
				Accounts:        a.tokens,
				Linker:          a.connector,
				DefaultInterval: cfg.Autopost.DefaultIntervalMinutes,
				DefaultStyle:    cfg.Autopost.DefaultStyle,
				NewsLimit:       cfg.News.Limit,
			}
			poller := &bot.Poller{API: a.botAPI, Handler: b.HandleUpdate}
			wg.Add(1)
			go func() {
				defer wg.Done()
				poller.Run(ctx)
			}()
		} else {
			log.Printf("No Telegram bot token in %s; chat commands are disabled", cfg.Telegram.BotTokenEnv)
		}

		fmt.Printf("Serving on http://%s\n", cfg.Server.Addr())
		fmt.Println("Press Ctrl+C to stop")
		err = srv.ListenAndServe(ctx, cfg.Server.Addr())
		stop()
		wg.Wait()
		return err
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one autopost cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := runningServer(cmd.Context()); c != nil {
			postID, err := c.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("autopost failed: %w", err)
			}
			fmt.Printf("Published. LinkedIn ID: %s\n", postID)
			return nil
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		postID, err := a.autopost.RunOnce(cmd.Context())
		if err != nil {
			if k := autopost.KindOf(err); k != 0 {
				return fmt.Errorf("autopost failed (%s): %w", k, err)
			}
			return fmt.Errorf("autopost failed: %w", err)
		}
		fmt.Printf("Published. LinkedIn ID: %s\n", postID)
		return nil
	},
}

// runningServer returns a client for a 'serve' process on the configured
// address, or nil when none answers. Runs and schedule changes must go
// through that process so they share its guard and timer.
func runningServer(ctx context.Context) *server.Client {
	c := server.NewClient("http://" + cfg.Server.Addr())
	if err := c.Ping(ctx); err != nil {
		return nil
	}
	log.Printf("Using the running server at %s", cfg.Server.Addr())
	return c
}

// --- enable / disable commands ---

var (
	enableChatID   int64
	enableOwnerID  int64
	enableInterval int
	enableStyle    string
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable autopost for a chat and account owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval := enableInterval
		if interval == 0 {
			interval = cfg.Autopost.DefaultIntervalMinutes
		}
		styleName := enableStyle
		if styleName == "" {
			styleName = cfg.Autopost.DefaultStyle
		}

		if c := runningServer(cmd.Context()); c != nil {
			s, err := c.Enable(cmd.Context(), server.EnableRequest{
				ChatID:          enableChatID,
				OwnerUserID:     enableOwnerID,
				IntervalMinutes: interval,
				Style:           styleName,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Autopost enabled on the running server: every %d min, style %s.\n", s.IntervalMinutes, s.Style)
			return nil
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.autopost.Enable(cmd.Context(), enableChatID, enableOwnerID, interval, styleName)
		if err != nil {
			return err
		}
		fmt.Printf("Autopost enabled: every %d min, style %s.\n", s.IntervalMinutes, s.Style)
		fmt.Println("The schedule runs while 'autoposter serve' is running.")
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable autopost",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c := runningServer(cmd.Context()); c != nil {
			if _, err := c.Disable(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Autopost disabled on the running server.")
			return nil
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.autopost.Disable(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Autopost disabled.")
		return nil
	},
}

func init() {
	enableCmd.Flags().Int64Var(&enableChatID, "chat", 0, "Telegram chat ID that receives notifications")
	enableCmd.Flags().Int64Var(&enableOwnerID, "owner", 0, "Telegram user ID whose LinkedIn account publishes")
	enableCmd.Flags().IntVar(&enableInterval, "interval", 0, "Minutes between runs (default from config)")
	enableCmd.Flags().StringVar(&enableStyle, "style", "", "Post style: "+strings.Join(style.Names(), ", "))
	enableCmd.MarkFlagRequired("chat")
	enableCmd.MarkFlagRequired("owner")
}

// --- news and preview commands ---

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "List the current ranked news",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.aggregator.Fetch(cmd.Context(), cfg.News.Limit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No news matched the configured keywords.")
			return nil
		}
		for i, item := range items {
			published := "undated"
			if item.PublishedAt != nil {
				published = item.PublishedAt.UTC().Format("2006-01-02 15:04")
			}
			fmt.Printf("%2d. %s\n    %s  %s\n", i+1, item.Title, published, item.Link)
		}
		return nil
	},
}

var (
	previewStyle string
	previewIndex int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Generate a post for a news item without publishing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()

		styleName := previewStyle
		if styleName == "" {
			styleName = cfg.Autopost.DefaultStyle
		}
		st, err := style.Parse(styleName)
		if err != nil {
			return err
		}

		items, err := a.aggregator.Fetch(ctx, cfg.News.Limit)
		if err != nil {
			return err
		}
		if previewIndex < 1 || previewIndex > len(items) {
			return fmt.Errorf("news item %d not available (%d items)", previewIndex, len(items))
		}
		item := items[previewIndex-1]
		if a.enricher != nil {
			item = a.enricher.Enrich(ctx, item)
		}

		text, err := a.generator.Generate(ctx, item, st)
		if err != nil {
			return err
		}
		fmt.Printf("News: %s\n%s\n\n", item.Title, item.Link)
		fmt.Println(text)
		fmt.Printf("\n(%d characters, style %s)\n", len([]rune(text)), st)
		return nil
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewStyle, "style", "", "Post style: "+strings.Join(style.Names(), ", "))
	previewCmd.Flags().IntVar(&previewIndex, "index", 1, "1-based position in the ranked news list")
}

// --- accounts command ---

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List connected LinkedIn accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.tokens.All(cmd.Context())
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No connected accounts. Use /linkedin_connect in the bot.")
		}
		now := time.Now()
		for _, acct := range accounts {
			expires := time.Unix(acct.ExpiresAtEpoch, 0)
			state := "valid"
			if !expires.After(now) {
				state = "expired"
			}
			name := acct.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("  user %d  %s (%s)  token %s until %s\n",
				acct.UserID, name, acct.PersonID, state, expires.UTC().Format("2006-01-02 15:04"))
		}

		if cfg.LinkedIn.AccessToken() != "" && cfg.LinkedIn.PersonID() != "" {
			fmt.Printf("Fallback token from %s is configured.\n", cfg.LinkedIn.AccessTokenEnv)
		}
		return nil
	},
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
