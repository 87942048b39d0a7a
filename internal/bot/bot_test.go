package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/TobiSchelling/AutoPoster/internal/credentials"
	"github.com/TobiSchelling/AutoPoster/internal/news"
	"github.com/TobiSchelling/AutoPoster/internal/settings"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

type mockSender struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockSender) Notify(_ context.Context, _ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return nil
}

func (m *mockSender) last(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		t.Fatal("expected a reply")
	}
	return m.messages[len(m.messages)-1]
}

type enableCall struct {
	chatID, userID int64
	interval       int
	style          string
}

type mockAutopost struct {
	enabled   *enableCall
	disabled  bool
	status    settings.Settings
	next      *time.Time
	postID    string
	runErr    error
	enableErr error
}

func (m *mockAutopost) Enable(_ context.Context, chatID, userID int64, interval int, styleName string) (settings.Settings, error) {
	if m.enableErr != nil {
		return settings.Settings{}, m.enableErr
	}
	m.enabled = &enableCall{chatID: chatID, userID: userID, interval: interval, style: styleName}
	m.status = settings.Settings{Enabled: true, ChatID: &chatID, OwnerUserID: &userID, IntervalMinutes: interval, Style: styleName}
	return m.status, nil
}

func (m *mockAutopost) Disable(context.Context) (settings.Settings, error) {
	m.disabled = true
	m.status.Enabled = false
	return m.status, nil
}

func (m *mockAutopost) Status(context.Context) (settings.Settings, *time.Time, error) {
	return m.status, m.next, nil
}

func (m *mockAutopost) RunOnce(context.Context) (string, error) {
	return m.postID, m.runErr
}

type mockNews struct {
	items []news.Item
	err   error
}

func (m *mockNews) Fetch(_ context.Context, limit int) ([]news.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.items) > limit {
		return m.items[:limit], nil
	}
	return m.items, nil
}

type mockSources map[int64]credentials.Source

func (m mockSources) Source(_ context.Context, userID int64) (credentials.Source, error) {
	if s, ok := m[userID]; ok {
		return s, nil
	}
	return credentials.SourceNone, nil
}

type mockAccounts struct {
	accounts map[int64]credentials.Account
	deleted  []int64
}

func (m *mockAccounts) Get(_ context.Context, userID int64) (*credentials.Account, error) {
	a, ok := m.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *mockAccounts) Delete(_ context.Context, userID int64) error {
	m.deleted = append(m.deleted, userID)
	delete(m.accounts, userID)
	return nil
}

type mockLinker struct {
	enabled   bool
	states    map[string]int64
	connected map[int64]string
}

func (m *mockLinker) Enabled() bool { return m.enabled }

func (m *mockLinker) Begin(userID int64) (string, error) {
	m.states["state-1"] = userID
	return "https://auth.example/authorize?state=state-1", nil
}

func (m *mockLinker) Redeem(state string) (int64, bool) {
	id, ok := m.states[state]
	delete(m.states, state)
	return id, ok
}

func (m *mockLinker) Connect(_ context.Context, userID int64, code string) (*credentials.Account, error) {
	if code == "bad-code-123" {
		return nil, errors.New("token exchange failed")
	}
	m.connected[userID] = code
	return &credentials.Account{PersonID: "p-1", Name: "Ada", ExpiresAtEpoch: 1_700_000_000}, nil
}

type fixture struct {
	bot      *Bot
	sender   *mockSender
	autopost *mockAutopost
	news     *mockNews
	accounts *mockAccounts
	linker   *mockLinker
}

func newFixture() *fixture {
	f := &fixture{
		sender:   &mockSender{},
		autopost: &mockAutopost{},
		news:     &mockNews{},
		accounts: &mockAccounts{accounts: map[int64]credentials.Account{}},
		linker:   &mockLinker{enabled: true, states: map[string]int64{}, connected: map[int64]string{}},
	}
	f.bot = &Bot{
		Sender:          f.sender,
		Autopost:        f.autopost,
		News:            f.news,
		Sources:         mockSources{7: credentials.SourceOAuth, 8: credentials.SourceEnv},
		Accounts:        f.accounts,
		Linker:          f.linker,
		DefaultInterval: 120,
		DefaultStyle:    "analytical",
		NewsLimit:       3,
	}
	return f
}

func commandMessage(chatID, userID int64, text string) tgbotapi.Update {
	command := text
	if idx := strings.Index(text, " "); idx != -1 {
		command = text[:idx]
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: userID},
		Entities: []tgbotapi.MessageEntity{{
			Type:   "bot_command",
			Offset: 0,
			Length: len(command),
		}},
	}}
}

func TestAutopostOnDefaults(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_on"))

	got := f.autopost.enabled
	if got == nil {
		t.Fatal("expected Enable to be called")
	}
	if got.chatID != 100 || got.userID != 7 || got.interval != 120 || got.style != "analytical" {
		t.Errorf("unexpected enable call: %+v", got)
	}
	if reply := f.sender.last(t); !strings.HasPrefix(reply, "Autopost enabled.") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestAutopostOnWithArguments(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 8, "/autopost_on 180 короткий"))

	got := f.autopost.enabled
	if got == nil || got.interval != 180 || got.style != "short" {
		t.Errorf("unexpected enable call: %+v", got)
	}
}

func TestAutopostOnRequiresCredentials(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 99, "/autopost_on"))

	if f.autopost.enabled != nil {
		t.Error("expected Enable not to be called without credentials")
	}
	if reply := f.sender.last(t); !strings.Contains(reply, "/linkedin_connect") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestAutopostOnInvalidArguments(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_on poetic"))

	if f.autopost.enabled != nil {
		t.Error("expected Enable not to be called")
	}
	if reply := f.sender.last(t); !strings.HasPrefix(reply, "Invalid arguments.") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestAutopostOnEnableError(t *testing.T) {
	f := newFixture()
	f.autopost.enableErr = errors.New("interval out of bounds")
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_on 5"))

	if reply := f.sender.last(t); reply != "Could not enable autopost: interval out of bounds" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestParseAutopostArgs(t *testing.T) {
	tests := []struct {
		raw      string
		interval int
		style    style.Style
		ok       bool
	}{
		{"", 120, style.Analytical, true},
		{"45", 45, style.Analytical, true},
		{"expert", 120, style.Expert, true},
		{"  PROVOCATIVE ", 120, style.Provocative, true},
		{"60 short", 60, style.Short, true},
		{"60 аналітичний extra", 60, style.Analytical, true},
		{"short 60", 0, 0, false},
		{"-5", 0, 0, false},
		{"60 poetic", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			interval, st, ok := parseAutopostArgs(tt.raw, 120, "analytical")
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if interval != tt.interval || st != tt.style {
				t.Errorf("got (%d, %s), want (%d, %s)", interval, st, tt.interval, tt.style)
			}
		})
	}
}

func TestAutopostOff(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_off"))

	if !f.autopost.disabled {
		t.Error("expected Disable to be called")
	}
	if reply := f.sender.last(t); reply != "Autopost disabled." {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestAutopostStatus(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_status"))
	if reply := f.sender.last(t); reply != "Autopost: disabled" {
		t.Errorf("unexpected reply: %q", reply)
	}

	chat, owner := int64(100), int64(7)
	next := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	f.autopost.status = settings.Settings{Enabled: true, ChatID: &chat, OwnerUserID: &owner, IntervalMinutes: 90, Style: "expert"}
	f.autopost.next = &next
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_status"))

	want := "Autopost: enabled\nChat ID: 100\nOwner user ID: 7\nInterval: 90 min\nStyle: expert\nNext run: 2026-03-01 12:30:00 UTC"
	if reply := f.sender.last(t); reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
}

func TestAutopostNow(t *testing.T) {
	f := newFixture()
	f.autopost.postID = "urn:li:share:1"
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_now"))
	if reply := f.sender.last(t); reply != "Autopost done. LinkedIn ID: urn:li:share:1" {
		t.Errorf("unexpected reply: %q", reply)
	}

	f.autopost.runErr = errors.New("no fresh news")
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/autopost_now"))
	if reply := f.sender.last(t); reply != "Autopost did not run: no fresh news" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestNewsCommand(t *testing.T) {
	f := newFixture()
	f.news.items = []news.Item{
		{Title: "AI chip", Link: "https://a.example/1"},
		{Title: "Go release", Link: "https://a.example/2"},
	}
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/news"))

	reply := f.sender.last(t)
	if !strings.Contains(reply, "1. AI chip\nhttps://a.example/1") || !strings.Contains(reply, "2. Go release") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestNewsCommandFailures(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/news"))
	if reply := f.sender.last(t); !strings.HasPrefix(reply, "No news matched") {
		t.Errorf("unexpected reply: %q", reply)
	}

	f.news.err = errors.New("feeds down")
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/news"))
	if reply := f.sender.last(t); !strings.HasPrefix(reply, "Could not load news") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestLinkedInConnect(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/linkedin_connect"))

	if f.linker.states["state-1"] != 7 {
		t.Error("expected state issued for user 7")
	}
	if reply := f.sender.last(t); !strings.Contains(reply, "https://auth.example/authorize?state=state-1") {
		t.Errorf("unexpected reply: %q", reply)
	}

	f.linker.enabled = false
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/linkedin_connect"))
	if reply := f.sender.last(t); !strings.HasPrefix(reply, "LinkedIn OAuth is not configured") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestLinkedInCode(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/linkedin_code AQTcode12345"))

	if f.linker.connected[7] != "AQTcode12345" {
		t.Errorf("expected code connected, got %v", f.linker.connected)
	}
	want := "LinkedIn token saved.\nProfile: Ada\nValid until: 2023-11-14 22:13:20 UTC\nPosts can be published now."
	if reply := f.sender.last(t); reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
}

func TestLinkedInCodeFromRedirectURL(t *testing.T) {
	f := newFixture()
	f.linker.states["state-1"] = 7
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7,
		"/linkedin_code https://app.example/callback?code=AQTcode12345&state=state-1"))

	if f.linker.connected[7] != "AQTcode12345" {
		t.Errorf("expected code connected, got %v", f.linker.connected)
	}
}

func TestLinkedInCodeRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"missing", "/linkedin_code", "Pass the code"},
		{"short", "/linkedin_code abc", "The code looks invalid"},
		{"foreign state", "/linkedin_code https://app.example/callback?code=AQTcode12345&state=state-9", "OAuth state does not match"},
		{"exchange failure", "/linkedin_code bad-code-123", "LinkedIn authorization failed: token exchange failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.linker.states["state-9"] = 8
			f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, tt.text))
			if len(f.linker.connected) != 0 {
				t.Errorf("expected nothing connected, got %v", f.linker.connected)
			}
			if reply := f.sender.last(t); !strings.HasPrefix(reply, tt.want) {
				t.Errorf("reply = %q, want prefix %q", reply, tt.want)
			}
		})
	}
}

func TestLinkedInStatus(t *testing.T) {
	f := newFixture()
	f.accounts.accounts[7] = credentials.Account{ExpiresAtEpoch: 1_700_000_000}

	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/linkedin_status"))
	if reply := f.sender.last(t); reply != "LinkedIn token: OAuth\nValid until: 2023-11-14 22:13:20 UTC" {
		t.Errorf("unexpected oauth reply: %q", reply)
	}

	f.bot.HandleUpdate(context.Background(), commandMessage(100, 8, "/linkedin_status"))
	if reply := f.sender.last(t); !strings.Contains(reply, "LINKEDIN_ACCESS_TOKEN") {
		t.Errorf("unexpected env reply: %q", reply)
	}

	f.bot.HandleUpdate(context.Background(), commandMessage(100, 9, "/linkedin_status"))
	if reply := f.sender.last(t); !strings.HasPrefix(reply, "No LinkedIn token configured") {
		t.Errorf("unexpected none reply: %q", reply)
	}
}

func TestLinkedInDisconnect(t *testing.T) {
	f := newFixture()
	f.accounts.accounts[7] = credentials.Account{AccessToken: "tok"}
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/linkedin_disconnect"))

	if len(f.accounts.deleted) != 1 || f.accounts.deleted[0] != 7 {
		t.Errorf("expected user 7 deleted, got %v", f.accounts.deleted)
	}
	if _, ok := f.accounts.accounts[7]; ok {
		t.Error("expected account removed")
	}
}

func TestIgnoresPlainText(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "hello",
		Chat: &tgbotapi.Chat{ID: 100},
	}})
	if len(f.sender.messages) != 0 {
		t.Errorf("expected no reply, got %v", f.sender.messages)
	}
}

func TestHelpAndUnknown(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/help"))
	if reply := f.sender.last(t); !strings.Contains(reply, "/autopost_on [minutes] [style]") {
		t.Errorf("unexpected help: %q", reply)
	}
	f.bot.HandleUpdate(context.Background(), commandMessage(100, 7, "/dance"))
	if reply := f.sender.last(t); reply != "Unknown command. Try /help." {
		t.Errorf("unexpected reply: %q", reply)
	}
}

type fakeUpdater struct {
	ch      chan tgbotapi.Update
	stopped chan struct{}
}

func (f *fakeUpdater) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.ch
}

func (f *fakeUpdater) StopReceivingUpdates() { close(f.stopped) }

func TestPollerDispatchesUntilCancelled(t *testing.T) {
	up := &fakeUpdater{ch: make(chan tgbotapi.Update, 2), stopped: make(chan struct{})}
	handled := make(chan int, 2)
	p := &Poller{API: up, Handler: func(_ context.Context, u tgbotapi.Update) {
		handled <- u.UpdateID
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	up.ch <- tgbotapi.Update{UpdateID: 1}
	up.ch <- tgbotapi.Update{UpdateID: 2}
	seen := map[int]bool{}
	for range 2 {
		select {
		case id := <-handled:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for updates")
		}
	}
	if !seen[1] || !seen[2] {
		t.Errorf("expected updates 1 and 2, got %v", seen)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	select {
	case <-up.stopped:
	default:
		t.Error("expected StopReceivingUpdates to be called")
	}
}
