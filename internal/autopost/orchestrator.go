package autopost

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/AutoPoster/internal/config"
	"github.com/TobiSchelling/AutoPoster/internal/credentials"
	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/linkedin"
	"github.com/TobiSchelling/AutoPoster/internal/news"
	"github.com/TobiSchelling/AutoPoster/internal/settings"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

// SettingsStore persists the autopost record.
type SettingsStore interface {
	Load(ctx context.Context) (settings.Settings, error)
	Save(ctx context.Context, s settings.Settings) error
}

// NewsSource returns ranked news, most recent first.
type NewsSource interface {
	Fetch(ctx context.Context, limit int) ([]news.Item, error)
}

// Enricher may improve a selected item before generation. It must not fail.
type Enricher interface {
	Enrich(ctx context.Context, item news.Item) news.Item
}

// CredentialResolver returns publishing credentials for a user, or
// credentials.ErrNoCredentials.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID int64) (credentials.Credentials, error)
}

// Generator writes post text for an item.
type Generator interface {
	Generate(ctx context.Context, item news.Item, s style.Style) (string, error)
}

// Publisher sends post text and returns the external post id.
type Publisher interface {
	Publish(ctx context.Context, text string, creds credentials.Credentials) (string, error)
}

// Notifier delivers a status message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// RunRecorder journals finished runs.
type RunRecorder interface {
	InsertRun(ctx context.Context, r database.Run) (int64, error)
}

// Deps are the orchestrator's collaborators. Enricher and Journal are optional.
type Deps struct {
	Settings    SettingsStore
	News        NewsSource
	Credentials CredentialResolver
	Generator   Generator
	Publisher   Publisher
	Notifier    Notifier
	Enricher    Enricher
	Journal     RunRecorder
}

// State is the orchestrator's scheduling state.
type State int

const (
	Idle State = iota
	Scheduled
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result describes a successful run.
type Result struct {
	PostID string
	Item   news.Item
	Text   string
	Source credentials.Source
}

// Orchestrator owns the recurring autopost timer and the run guard.
//
// At most one timer entry exists at a time. Every run, scheduled or
// manual, goes through runMu, so runs never interleave and each one sees
// the cursor written by the previous one.
type Orchestrator struct {
	deps      Deps
	newsLimit int

	cron *cron.Cron

	mu          sync.Mutex // guards the fields below
	entry       cron.EntryID
	scheduled   bool
	cronStarted bool
	started     bool
	running     bool

	runMu sync.Mutex

	now func() time.Time
}

// New creates an orchestrator. newsLimit bounds each news fetch.
func New(deps Deps, newsLimit int) *Orchestrator {
	if newsLimit <= 0 {
		newsLimit = 10
	}
	logger := cron.PrintfLogger(log.Default())
	return &Orchestrator{
		deps:      deps,
		newsLimit: newsLimit,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		now: time.Now,
	}
}

// Start resumes the timer when the stored settings are enabled. Calling it
// again has no effect.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	s, err := o.deps.Settings.Load(ctx)
	if err != nil {
		return newError(KindStorage, "loading autopost settings", err)
	}
	if !s.Enabled {
		log.Printf("Autopost is disabled")
		return nil
	}
	o.schedule(s.IntervalMinutes)
	log.Printf("Autopost scheduler resumed (every %d minutes)", s.IntervalMinutes)
	return nil
}

// Stop halts the timer. The returned context is done once any running
// job has finished.
func (o *Orchestrator) Stop() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.cronStarted {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	o.cronStarted = false
	return o.cron.Stop()
}

// Enable validates and stores the schedule, then installs the timer,
// replacing any existing one. An invalid interval or style leaves both the
// settings and the timer untouched.
func (o *Orchestrator) Enable(ctx context.Context, chatID, ownerUserID int64, intervalMinutes int, styleName string) (settings.Settings, error) {
	if intervalMinutes < config.MinIntervalMinutes || intervalMinutes > config.MaxIntervalMinutes {
		return settings.Settings{}, newError(KindConfig,
			fmt.Sprintf("interval must be between %d and %d minutes", config.MinIntervalMinutes, config.MaxIntervalMinutes),
			ErrInvalidInterval)
	}
	st, err := style.Parse(styleName)
	if err != nil {
		return settings.Settings{}, newError(KindConfig, err.Error(), ErrInvalidStyle)
	}

	o.runMu.Lock()
	defer o.runMu.Unlock()

	s, err := o.deps.Settings.Load(ctx)
	if err != nil {
		return settings.Settings{}, newError(KindStorage, "loading autopost settings", err)
	}
	s.Enabled = true
	s.ChatID = &chatID
	s.OwnerUserID = &ownerUserID
	s.IntervalMinutes = intervalMinutes
	s.Style = st.String()
	if err := o.deps.Settings.Save(ctx, s); err != nil {
		return settings.Settings{}, newError(KindStorage, "saving autopost settings", err)
	}

	o.schedule(intervalMinutes)
	log.Printf("Autopost scheduled every %d minutes for chat %d", intervalMinutes, chatID)
	return s, nil
}

// Disable removes the timer and stores enabled=false. A run already in
// progress completes before the settings are written.
func (o *Orchestrator) Disable(ctx context.Context) (settings.Settings, error) {
	o.unschedule()

	o.runMu.Lock()
	defer o.runMu.Unlock()

	s, err := o.deps.Settings.Load(ctx)
	if err != nil {
		return settings.Settings{}, newError(KindStorage, "loading autopost settings", err)
	}
	s.Enabled = false
	if err := o.deps.Settings.Save(ctx, s); err != nil {
		return settings.Settings{}, newError(KindStorage, "saving autopost settings", err)
	}
	log.Printf("Autopost disabled")
	return s, nil
}

// Status returns the stored settings and the next fire time, which is nil
// when no timer is installed.
func (o *Orchestrator) Status(ctx context.Context) (settings.Settings, *time.Time, error) {
	s, err := o.deps.Settings.Load(ctx)
	if err != nil {
		return settings.Settings{}, nil, newError(KindStorage, "loading autopost settings", err)
	}
	return s, o.NextRun(), nil
}

// NextRun returns the next timer fire time, or nil.
func (o *Orchestrator) NextRun() *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.scheduled {
		return nil
	}
	next := o.cron.Entry(o.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// State reports Running while a run holds the guard, Scheduled while a
// timer is installed, and Idle otherwise.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.running:
		return Running
	case o.scheduled:
		return Scheduled
	default:
		return Idle
	}
}

// RunOnce executes the pipeline now and returns the external post id.
// It waits for any run already in progress.
func (o *Orchestrator) RunOnce(ctx context.Context) (string, error) {
	res, err := o.run(ctx, database.TriggerManual)
	if err != nil {
		return "", err
	}
	return res.PostID, nil
}

// fire is the timer job. Failures go to the configured chat instead of
// the caller.
func (o *Orchestrator) fire() {
	ctx := context.Background()
	res, err := o.run(ctx, database.TriggerScheduled)
	if errors.Is(err, ErrDisabled) {
		log.Printf("Scheduled autopost skipped: autopost is disabled")
		return
	}
	if err == nil {
		log.Printf("Scheduled autopost published %s", res.PostID)
		return
	}

	log.Printf("Scheduled autopost failed: %v", err)
	s, loadErr := o.deps.Settings.Load(ctx)
	if loadErr != nil || s.ChatID == nil {
		return
	}
	o.notify(ctx, *s.ChatID, "Autopost failed: "+err.Error())
}

func (o *Orchestrator) schedule(intervalMinutes int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.scheduled {
		o.cron.Remove(o.entry)
	}
	o.entry = o.cron.Schedule(cron.Every(time.Duration(intervalMinutes)*time.Minute), cron.FuncJob(o.fire))
	o.scheduled = true
	if !o.cronStarted {
		o.cron.Start()
		o.cronStarted = true
	}
}

func (o *Orchestrator) unschedule() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.scheduled {
		return
	}
	o.cron.Remove(o.entry)
	o.entry = 0
	o.scheduled = false
}

func (o *Orchestrator) setRunning(v bool) {
	o.mu.Lock()
	o.running = v
	o.mu.Unlock()
}

// run holds the guard for the whole pipeline. Once the guard is taken the
// run ignores caller cancellation; each outbound call has its own timeout.
func (o *Orchestrator) run(ctx context.Context, trigger string) (*Result, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	ctx = context.WithoutCancel(ctx)

	// The stored flag wins over the timer: the record may have been
	// disabled by another process, or while this job waited for the guard.
	if trigger == database.TriggerScheduled {
		s, err := o.deps.Settings.Load(ctx)
		if err != nil {
			return nil, newError(KindStorage, "loading autopost settings", err)
		}
		if !s.Enabled {
			o.unschedule()
			return nil, newError(KindConfig, "", ErrDisabled)
		}
	}

	o.setRunning(true)
	defer o.setRunning(false)

	rec := database.Run{Trigger: trigger, StartedAt: o.now()}
	res, err := o.execute(ctx, &rec)
	rec.FinishedAt = o.now()
	if err != nil {
		rec.Outcome = database.OutcomeFailed
		msg := err.Error()
		rec.Error = &msg
	} else {
		rec.Outcome = database.OutcomePublished
	}
	o.record(ctx, rec)
	return res, err
}

func (o *Orchestrator) execute(ctx context.Context, rec *database.Run) (*Result, error) {
	s, err := o.deps.Settings.Load(ctx)
	if err != nil {
		return nil, newError(KindStorage, "loading autopost settings", err)
	}
	if s.ChatID == nil || s.OwnerUserID == nil {
		return nil, newError(KindConfig, "", ErrNotConfigured)
	}

	st, err := s.ParsedStyle()
	if err != nil {
		return nil, newError(KindConfig, fmt.Sprintf("stored style %q", s.Style), ErrInvalidStyle)
	}
	rec.Style = strPtr(st.String())

	items, err := o.deps.News.Fetch(ctx, o.newsLimit)
	if err != nil {
		return nil, newError(KindStorage, "fetching news", err)
	}
	item, ok := SelectNext(items, s.LastPostedLink())
	if !ok {
		return nil, newError(KindNotFound, "", ErrNoFreshNews)
	}
	rec.NewsLink = strPtr(item.Link)
	rec.NewsTitle = strPtr(item.Title)

	creds, err := o.deps.Credentials.Resolve(ctx, *s.OwnerUserID)
	if errors.Is(err, credentials.ErrNoCredentials) {
		return nil, newError(KindNotFound, "connect one with /linkedin_connect", ErrNotConnected)
	}
	if err != nil {
		return nil, newError(KindStorage, "resolving credentials", err)
	}
	rec.CredentialSource = strPtr(string(creds.Source()))

	if o.deps.Enricher != nil {
		item = o.deps.Enricher.Enrich(ctx, item)
	}

	text, err := o.deps.Generator.Generate(ctx, item, st)
	if err != nil {
		return nil, newError(KindGeneration, "", err)
	}
	rec.PostText = strPtr(text)

	postID, err := o.deps.Publisher.Publish(ctx, text, creds)
	if errors.Is(err, linkedin.ErrTokenInvalid) {
		return nil, newError(KindAuth, "", err)
	}
	if err != nil {
		return nil, newError(KindPublish, "", err)
	}
	rec.PostID = strPtr(postID)

	link := item.Link
	epoch := o.now().Unix()
	s.LastPostedNewsLink = &link
	s.LastRunEpoch = &epoch
	if err := o.deps.Settings.Save(ctx, s); err != nil {
		return nil, newError(KindStorage, fmt.Sprintf("post %s was published but settings could not be saved", postID), err)
	}

	o.notify(ctx, *s.ChatID, fmt.Sprintf("Autopost published.\nLinkedIn ID: %s\nNews: %s", postID, item.Title))
	return &Result{PostID: postID, Item: item, Text: text, Source: creds.Source()}, nil
}

// SelectNext returns the first item whose link differs from lastLink.
func SelectNext(items []news.Item, lastLink string) (news.Item, bool) {
	for _, item := range items {
		if item.Link != lastLink {
			return item, true
		}
	}
	return news.Item{}, false
}

func (o *Orchestrator) notify(ctx context.Context, chatID int64, text string) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, chatID, text); err != nil {
		log.Printf("Failed to send autopost notification to chat %d: %v", chatID, err)
	}
}

func (o *Orchestrator) record(ctx context.Context, r database.Run) {
	if o.deps.Journal == nil {
		return
	}
	if _, err := o.deps.Journal.InsertRun(ctx, r); err != nil {
		log.Printf("Failed to journal run: %v", err)
	}
}

func strPtr(s string) *string { return &s }
