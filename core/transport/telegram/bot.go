// Package telegram adapts the Telegram Bot API to the conversation
// engine: inbound updates become MessageEvents, engine replies are
// rendered back as messages with reply keyboards.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/swiftline/courierbot/core/config"
	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/logger"
	"github.com/swiftline/courierbot/core/transport"
	"github.com/swiftline/courierbot/core/transport/netutil"
)

// Bot runs the Telegram side of the service. It implements
// transport.Sender for outbound pushes initiated outside a conversation.
type Bot struct {
	bot    *tele.Bot
	engine *conversation.Engine
}

// New builds the bot, wires the update handlers and verifies the token
// against the API.
func New(cfg *coreconfig.Config, engine *conversation.Engine) (*Bot, error) {
	if engine == nil {
		return nil, fmt.Errorf("telegram: engine is required")
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: buildPoller(cfg),
		Client: netutil.BuildHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	b := &Bot{bot: bot, engine: engine}
	bot.Handle(tele.OnText, b.onMessage)
	bot.Handle(tele.OnPhoto, b.onMessage)
	bot.Handle(tele.OnDocument, b.onMessage)

	logger.TG.Info("bot ready",
		slog.String("event", "init"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.Duration("duration", logger.RoundMS(time.Since(buildStart))),
	)
	return b, nil
}

// Run starts receiving updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		b.bot.Stop()
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (b *Bot) onMessage(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	ev := conversation.MessageEvent{
		Platform: transport.PlatformTelegram,
		Text:     c.Text(),
		MediaRef: mediaRef(c.Message()),
		Identity: domain.PlatformIdentity{
			Platform:   transport.PlatformTelegram,
			ExternalID: strconv.FormatInt(sender.ID, 10),
			Name:       displayName(sender),
			ChatTarget: strconv.FormatInt(c.Chat().ID, 10),
		},
	}

	res, err := b.engine.HandleMessage(context.Background(), ev)
	if err != nil {
		logger.TG.Error("engine call failed",
			slog.String("event", "tg.update"),
			slog.String("status", "error"),
			slog.Int64("chat_id", c.Chat().ID),
			slog.String("err", err.Error()),
		)
		return c.Send("Something went wrong, please try again.")
	}

	return b.reply(c, res.Response)
}

func (b *Bot) reply(c tele.Context, resp conversation.Response) error {
	markup := replyMarkup(resp.Keyboard)
	if resp.MediaRef != "" {
		photo := &tele.Photo{File: tele.File{FileID: resp.MediaRef}, Caption: resp.MediaCaption}
		if err := c.Send(photo); err != nil {
			return err
		}
	}
	if resp.Text == "" {
		return nil
	}
	if markup != nil {
		return c.Send(resp.Text, markup)
	}
	return c.Send(resp.Text)
}

// SendText implements transport.Sender. Target is the chat id as text.
func (b *Bot) SendText(ctx context.Context, target, text string, keyboard [][]string) error {
	chat, err := chatFromTarget(target)
	if err != nil {
		return err
	}
	if markup := replyMarkup(keyboard); markup != nil {
		_, err = b.bot.Send(chat, text, markup)
	} else {
		_, err = b.bot.Send(chat, text)
	}
	return err
}

// SendMedia implements transport.Sender.
func (b *Bot) SendMedia(ctx context.Context, target, mediaRef, caption string) error {
	chat, err := chatFromTarget(target)
	if err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.File{FileID: mediaRef}, Caption: caption}
	_, err = b.bot.Send(chat, photo)
	return err
}

func chatFromTarget(target string) (*tele.Chat, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: bad chat target %q: %w", target, err)
	}
	return &tele.Chat{ID: id}, nil
}

// replyMarkup renders plain label rows as a resized reply keyboard.
// Empty rows mean no keyboard change.
func replyMarkup(rows [][]string) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	keyboard := make([][]tele.ReplyButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.ReplyButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tele.ReplyButton{Text: label})
		}
		keyboard = append(keyboard, buttons)
	}
	markup.ReplyKeyboard = keyboard
	return markup
}

// mediaRef extracts a stable file reference from an inbound message.
func mediaRef(msg *tele.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Photo != nil {
		return msg.Photo.FileID
	}
	if msg.Document != nil {
		return msg.Document.FileID
	}
	return ""
}

// displayName renders the user's visible name the way Telegram shows it.
func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
