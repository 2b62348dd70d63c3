package notifier

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"
)

const (
	pollTimeout  = 30 * time.Second
	pollBackoff  = 5 * time.Second
	maxReplySize = 4096
)

// Command is a parsed chat command such as "/account@keeper_bot acct-01".
type Command struct {
	Name   string // lower-case, without the leading slash or bot suffix
	Args   []string
	ChatID int64
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// ParseCommand splits text into a Command; false when text is not a slash command.
func ParseCommand(text string) (Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(name), Args: fields[1:]}, true
}

// CommandHandler answers a command; an empty reply sends nothing.
type CommandHandler func(ctx context.Context, cmd Command) string

type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling long-polls for chat commands from the configured chat. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	chatID, err := strconv.ParseInt(t.ChatID, 10, 64)
	if err != nil {
		log.Printf("[ERROR] telegram polling disabled: chat id %q: %v", t.ChatID, err)
		return
	}
	client := t.PollClient
	if client == nil {
		client = t.Client
	}

	offset := 0
	for ctx.Err() == nil {
		var updates []telegramUpdate
		err := t.call(ctx, client, "getUpdates", map[string]int{
			"offset":  offset,
			"timeout": int(pollTimeout / time.Second),
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				log.Printf("[ERROR] telegram polling stopped: %v", err)
				return
			}
			log.Printf("[WARN] polling request failed: %v", err)
			sleepCtx(ctx, pollBackoff)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil {
				continue
			}
			if update.Message.Chat.ID != chatID {
				log.Printf("[WARN] ignoring command from chat %d", update.Message.Chat.ID)
				continue
			}
			cmd, ok := ParseCommand(update.Message.Text)
			if !ok {
				continue
			}
			cmd.ChatID = update.Message.Chat.ID
			log.Printf("[INFO] received command /%s %v", cmd.Name, cmd.Args)

			reply := handler(ctx, cmd)
			if reply == "" {
				continue
			}
			if r := []rune(reply); len(r) > maxReplySize {
				reply = string(r[:maxReplySize])
			}
			if err := t.Send(ctx, reply); err != nil {
				log.Printf("[ERROR] reply to /%s: %v", cmd.Name, err)
			}
		}
	}
	log.Println("[INFO] Telegram polling stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
