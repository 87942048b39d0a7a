package main

import (
	"fmt"
	"log"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/TobiSchelling/AutoPoster/internal/autopost"
	"github.com/TobiSchelling/AutoPoster/internal/credentials"
	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/generate"
	"github.com/TobiSchelling/AutoPoster/internal/linkedin"
	"github.com/TobiSchelling/AutoPoster/internal/llm"
	"github.com/TobiSchelling/AutoPoster/internal/news"
	"github.com/TobiSchelling/AutoPoster/internal/notify"
	"github.com/TobiSchelling/AutoPoster/internal/settings"
)

// app holds every long-lived component built from the loaded config.
type app struct {
	db         *database.DB
	settings   *settings.FileStore
	tokens     *credentials.FileStore
	resolver   *credentials.Resolver
	aggregator *news.Aggregator
	enricher   *news.Enricher
	generator  *generate.Generator
	publisher  *linkedin.Publisher
	connector  *linkedin.Connector
	botAPI     *tgbotapi.BotAPI
	notifier   autopost.Notifier
	autopost   *autopost.Orchestrator
}

// newApp wires the components. With connectBot set and a bot token present,
// the Telegram API is contacted once to verify the token.
func newApp(connectBot bool) (*app, error) {
	if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := database.Open(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("opening run journal: %w", err)
	}

	a := &app{db: db}
	a.settings = settings.NewFileStore(cfg.SettingsPath(),
		settings.Defaults(cfg.Autopost.DefaultIntervalMinutes, cfg.Autopost.DefaultStyle))
	a.tokens = credentials.NewFileStore(cfg.TokenStorePath())
	a.resolver = credentials.NewResolver(a.tokens, cfg.LinkedIn.AccessToken(), cfg.LinkedIn.PersonID())

	sources := make([]news.Source, 0, len(cfg.News.Feeds))
	for _, f := range cfg.News.Feeds {
		sources = append(sources, news.Source{URL: f.URL, Name: f.Name})
	}
	a.aggregator = news.NewAggregator(sources, cfg.News.Keywords, cfg.News.Timeout())
	if cfg.News.EnrichSummaries {
		a.enricher = news.NewEnricher(cfg.News.Timeout())
	}

	g := cfg.Generation
	client := llm.NewClient(g.APIURL, g.APIKey(), g.Timeout(),
		llm.WithRequestsPerMinute(g.RequestsPerMinute),
		llm.WithUnavailableStatuses(g.UnavailableStatusCodes...),
	)
	if !client.IsConfigured() {
		log.Printf("Warning: %s is not set; generation will fail", g.APIKeyEnv)
	}
	a.generator = generate.New(client, generate.Options{
		Model:          g.Model,
		ProviderPrefix: g.ProviderPrefix,
		Temperature:    g.Temperature,
		MaxRetries:     g.MaxRetries,
		Backoff:        g.RetryBackoff(),
		Language:       g.Language,
		Guardrails: generate.Guardrails{
			ClosingQuestion: g.ClosingQuestion,
			DefaultHashtags: g.DefaultHashtags,
		},
	})

	li := cfg.LinkedIn
	a.publisher = linkedin.NewPublisher(li.Timeout())
	oauth := linkedin.NewOAuth(li.ClientID(), li.ClientSecret(), li.RedirectURI, li.Scopes, li.Timeout())
	a.connector = linkedin.NewConnector(oauth, a.tokens)

	a.notifier = notify.Log{}
	if token := cfg.BotToken(); token != "" && connectBot {
		api, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to telegram: %w", err)
		}
		log.Printf("Authorized on Telegram as @%s", api.Self.UserName)
		a.botAPI = api
		a.notifier = notify.NewTelegram(api)
	}

	deps := autopost.Deps{
		Settings:    a.settings,
		News:        a.aggregator,
		Credentials: a.resolver,
		Generator:   a.generator,
		Publisher:   a.publisher,
		Notifier:    a.notifier,
		Journal:     a.db,
	}
	if a.enricher != nil {
		deps.Enricher = a.enricher
	}
	a.autopost = autopost.New(deps, cfg.News.Limit)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
