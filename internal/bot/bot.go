package bot

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/TobiSchelling/AutoPoster/internal/credentials"
	"github.com/TobiSchelling/AutoPoster/internal/linkedin"
	"github.com/TobiSchelling/AutoPoster/internal/news"
	"github.com/TobiSchelling/AutoPoster/internal/settings"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

// minCodeLength rejects obviously truncated authorization codes.
const minCodeLength = 8

// Sender delivers a reply to a chat. *notify.Telegram satisfies it.
type Sender interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Autoposter is the scheduling surface the bot drives.
type Autoposter interface {
	Enable(ctx context.Context, chatID, ownerUserID int64, intervalMinutes int, styleName string) (settings.Settings, error)
	Disable(ctx context.Context) (settings.Settings, error)
	Status(ctx context.Context) (settings.Settings, *time.Time, error)
	RunOnce(ctx context.Context) (string, error)
}

// NewsSource returns ranked news items.
type NewsSource interface {
	Fetch(ctx context.Context, limit int) ([]news.Item, error)
}

// SourceResolver reports which credentials a user would publish with.
type SourceResolver interface {
	Source(ctx context.Context, userID int64) (credentials.Source, error)
}

// AccountStore reads and removes connected accounts.
type AccountStore interface {
	Get(ctx context.Context, userID int64) (*credentials.Account, error)
	Delete(ctx context.Context, userID int64) error
}

// Linker runs the LinkedIn OAuth flow.
type Linker interface {
	Enabled() bool
	Begin(userID int64) (string, error)
	Redeem(state string) (int64, bool)
	Connect(ctx context.Context, userID int64, code string) (*credentials.Account, error)
}

// Bot routes chat commands to the autopost and account services.
type Bot struct {
	Sender   Sender
	Autopost Autoposter
	News     NewsSource
	Sources  SourceResolver
	Accounts AccountStore
	Linker   Linker

	DefaultInterval int
	DefaultStyle    string
	NewsLimit       int
}

const helpText = "Commands:\n" +
	"/news - show the latest matching news\n" +
	"/autopost_on [minutes] [style] - enable autopost\n" +
	"/autopost_off - disable autopost\n" +
	"/autopost_status - show autopost status\n" +
	"/autopost_now - run autopost now\n" +
	"/linkedin_connect - start LinkedIn authorization\n" +
	"/linkedin_code <code|url> - finish LinkedIn authorization\n" +
	"/linkedin_status - show which LinkedIn token is used\n" +
	"/linkedin_disconnect - remove your LinkedIn token\n" +
	"/help - this list"

// HandleUpdate dispatches a single update. Non-command messages are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.reply(ctx, chatID, "AutoPoster publishes LinkedIn posts about fresh tech news.\n\n"+helpText)
	case "help":
		b.reply(ctx, chatID, helpText)
	case "news":
		b.handleNews(ctx, chatID)
	case "autopost_on":
		b.handleAutopostOn(ctx, chatID, userID, args)
	case "autopost_off":
		b.handleAutopostOff(ctx, chatID)
	case "autopost_status":
		b.handleAutopostStatus(ctx, chatID)
	case "autopost_now":
		b.handleAutopostNow(ctx, chatID)
	case "linkedin_connect", "linkedin_auth":
		b.handleConnect(ctx, chatID, userID)
	case "linkedin_code":
		b.handleCode(ctx, chatID, userID, args)
	case "linkedin_status":
		b.handleLinkedInStatus(ctx, chatID, userID)
	case "linkedin_disconnect":
		b.handleDisconnect(ctx, chatID, userID)
	default:
		b.reply(ctx, chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleNews(ctx context.Context, chatID int64) {
	limit := b.NewsLimit
	if limit <= 0 {
		limit = 5
	}
	items, err := b.News.Fetch(ctx, limit)
	if err != nil {
		log.Printf("Failed to load news: %v", err)
		b.reply(ctx, chatID, "Could not load news. Try again later.")
		return
	}
	if len(items) == 0 {
		b.reply(ctx, chatID, "No news matched the keywords. Try again later.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Latest news:\n")
	for i, item := range items {
		fmt.Fprintf(&sb, "\n%d. %s\n%s\n", i+1, item.Title, item.Link)
	}
	b.reply(ctx, chatID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleAutopostOn(ctx context.Context, chatID, userID int64, args string) {
	if userID == 0 {
		b.reply(ctx, chatID, "Could not identify the Telegram user.")
		return
	}
	source, err := b.Sources.Source(ctx, userID)
	if err != nil {
		log.Printf("Failed to resolve credential source for user %d: %v", userID, err)
		b.reply(ctx, chatID, "Could not read LinkedIn credentials. Try again later.")
		return
	}
	if source == credentials.SourceNone {
		b.reply(ctx, chatID, "Connect LinkedIn first: /linkedin_connect")
		return
	}

	interval, st, ok := parseAutopostArgs(args, b.DefaultInterval, b.DefaultStyle)
	if !ok {
		b.reply(ctx, chatID, "Invalid arguments.\n"+
			"Example: /autopost_on 180 analytical\n"+
			"Styles: "+strings.Join(style.Names(), ", "))
		return
	}

	s, err := b.Autopost.Enable(ctx, chatID, userID, interval, st.String())
	if err != nil {
		b.reply(ctx, chatID, "Could not enable autopost: "+err.Error())
		return
	}
	_, next, err := b.Autopost.Status(ctx)
	if err != nil {
		log.Printf("Failed to read autopost status: %v", err)
	}
	b.reply(ctx, chatID, fmt.Sprintf("Autopost enabled.\nInterval: %d min\nStyle: %s\nNext run: %s",
		s.IntervalMinutes, s.Style, formatTime(next)))
}

func (b *Bot) handleAutopostOff(ctx context.Context, chatID int64) {
	if _, err := b.Autopost.Disable(ctx); err != nil {
		b.reply(ctx, chatID, "Could not disable autopost: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "Autopost disabled.")
}

func (b *Bot) handleAutopostStatus(ctx context.Context, chatID int64) {
	s, next, err := b.Autopost.Status(ctx)
	if err != nil {
		b.reply(ctx, chatID, "Could not read autopost status: "+err.Error())
		return
	}
	if !s.Enabled {
		b.reply(ctx, chatID, "Autopost: disabled")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Autopost: enabled\nChat ID: %s\nOwner user ID: %s\nInterval: %d min\nStyle: %s\nNext run: %s",
		formatID(s.ChatID), formatID(s.OwnerUserID), s.IntervalMinutes, s.Style, formatTime(next)))
}

func (b *Bot) handleAutopostNow(ctx context.Context, chatID int64) {
	postID, err := b.Autopost.RunOnce(ctx)
	if err != nil {
		b.reply(ctx, chatID, "Autopost did not run: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "Autopost done. LinkedIn ID: "+postID)
}

func (b *Bot) handleConnect(ctx context.Context, chatID, userID int64) {
	if !b.Linker.Enabled() {
		b.reply(ctx, chatID, "LinkedIn OAuth is not configured. Set LINKEDIN_CLIENT_ID, LINKEDIN_CLIENT_SECRET and linkedin.redirect_uri.")
		return
	}
	authURL, err := b.Linker.Begin(userID)
	if err != nil {
		b.reply(ctx, chatID, "Could not build the authorization URL: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "1) Open the link and authorize the app.\n"+
		"2) After the redirect, copy the code parameter (or the whole URL).\n"+
		"3) Send: /linkedin_code <CODE>\n\n"+
		"Link:\n"+authURL)
}

func (b *Bot) handleCode(ctx context.Context, chatID, userID int64, args string) {
	if userID == 0 {
		b.reply(ctx, chatID, "Could not identify the Telegram user.")
		return
	}
	if args == "" {
		b.reply(ctx, chatID, "Pass the code: /linkedin_code <CODE>")
		return
	}
	if !b.Linker.Enabled() {
		b.reply(ctx, chatID, "LinkedIn OAuth is not configured.")
		return
	}

	code := linkedin.ExtractCode(args)
	if len(code) < minCodeLength {
		b.reply(ctx, chatID, "The code looks invalid. Check it and try again.")
		return
	}
	if state := extractState(args); state != "" {
		owner, ok := b.Linker.Redeem(state)
		if !ok || owner != userID {
			b.reply(ctx, chatID, "OAuth state does not match. Run /linkedin_connect again.")
			return
		}
	}

	acct, err := b.Linker.Connect(ctx, userID, code)
	if err != nil {
		b.reply(ctx, chatID, "LinkedIn authorization failed: "+err.Error())
		return
	}
	name := acct.Name
	if name == "" {
		name = acct.PersonID
	}
	b.reply(ctx, chatID, fmt.Sprintf("LinkedIn token saved.\nProfile: %s\nValid until: %s\nPosts can be published now.",
		name, formatEpoch(acct.ExpiresAtEpoch)))
}

func (b *Bot) handleLinkedInStatus(ctx context.Context, chatID, userID int64) {
	source, err := b.Sources.Source(ctx, userID)
	if err != nil {
		log.Printf("Failed to resolve credential source for user %d: %v", userID, err)
		b.reply(ctx, chatID, "Could not read LinkedIn credentials. Try again later.")
		return
	}
	switch source {
	case credentials.SourceOAuth:
		text := "LinkedIn token: OAuth"
		if acct, err := b.Accounts.Get(ctx, userID); err == nil && acct != nil {
			text += "\nValid until: " + formatEpoch(acct.ExpiresAtEpoch)
		}
		b.reply(ctx, chatID, text)
	case credentials.SourceEnv:
		b.reply(ctx, chatID, "LinkedIn token: from the environment (LINKEDIN_ACCESS_TOKEN)")
	default:
		b.reply(ctx, chatID, "No LinkedIn token configured. Use /linkedin_connect")
	}
}

func (b *Bot) handleDisconnect(ctx context.Context, chatID, userID int64) {
	if err := b.Accounts.Delete(ctx, userID); err != nil {
		b.reply(ctx, chatID, "Could not remove the token: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "Your OAuth token was removed.\n"+
		"If LINKEDIN_ACCESS_TOKEN is set, the bot keeps publishing with it.")
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.Sender.Notify(ctx, chatID, text); err != nil {
		log.Printf("Failed to reply to chat %d: %v", chatID, err)
	}
}

// parseAutopostArgs accepts "", "N", "style" or "N style". A lone number
// sets the interval, a lone word sets the style. With two or more words the
// first must be a number.
func parseAutopostArgs(raw string, defaultInterval int, defaultStyle string) (int, style.Style, bool) {
	args := strings.Fields(strings.ToLower(raw))
	interval := defaultInterval
	styleName := defaultStyle

	switch {
	case len(args) == 1:
		if isDigits(args[0]) {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return 0, 0, false
			}
			interval = n
		} else {
			styleName = args[0]
		}
	case len(args) >= 2:
		if !isDigits(args[0]) {
			return 0, 0, false
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, 0, false
		}
		interval = n
		styleName = args[1]
	}

	st, err := style.Parse(styleName)
	if err != nil {
		return 0, 0, false
	}
	return interval, st, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// extractState returns the state parameter of a pasted redirect URL.
func extractState(input string) string {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return ""
	}
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("state"))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func formatEpoch(epoch int64) string {
	if epoch <= 0 {
		return "-"
	}
	return time.Unix(epoch, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}
