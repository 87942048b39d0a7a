package bot

import (
	"context"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// pollTimeout is the long-poll timeout in seconds.
const pollTimeout = 30

// Updater is the part of *tgbotapi.BotAPI the poller uses.
type Updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller long-polls for updates and hands each one to Handler.
type Poller struct {
	API     Updater
	Handler func(ctx context.Context, update tgbotapi.Update)
}

// Run receives updates until ctx is cancelled. Each update is handled on its
// own goroutine so a slow command does not block the others. Run returns
// after in-flight handlers finish.
func (p *Poller) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := p.API.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	log.Printf("Telegram bot polling started")
	for {
		select {
		case <-ctx.Done():
			p.API.StopReceivingUpdates()
			log.Printf("Telegram bot polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Handler(ctx, update)
			}()
		}
	}
}
