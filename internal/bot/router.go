package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"relaybot/pkg/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// linkPattern finds a message permalink anywhere in free text.
var linkPattern = regexp.MustCompile(`https?://t\.me/\S+`)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// menuEntry is one command of the bot menu.
type menuEntry struct {
	command     string
	description string
}

var menu = []menuEntry{
	{command: "start", description: "开始使用机器人"},
	{command: "help", description: "获取帮助信息"},
	{command: "clear", description: "删除最近发送的消息"},
	{command: "random", description: "随机发送消息"},
	{command: "collectlinks", description: "收集频道历史消息链接"},
	{command: "listlinks", description: "查看已收集的频道数据"},
	{command: "sendto", description: "克隆频道到目标频道"},
	{command: "stop", description: "停止批量转发任务"},
	{command: "config", description: "管理文本处理配置"},
	{command: "testconfig", description: "测试文本处理效果"},
}

func (b *Bot) commandTable() map[string]commandHandler {
	return map[string]commandHandler{
		"start":        b.handleStart,
		"help":         b.handleHelp,
		"clear":        b.handleClear,
		"random":       b.handleRandom,
		"collectlinks": b.handleCollect,
		"listlinks":    b.handleListLinks,
		"sendto":       b.handleSendTo,
		"stop":         b.handleStop,
		"config":       b.handleConfig,
		"testconfig":   b.handleTestConfig,
	}
}

// RegisterCommands publishes the command menu.
func (b *Bot) RegisterCommands() error {
	commands := make([]tgbotapi.BotCommand, 0, len(menu))
	for _, entry := range menu {
		commands = append(commands, tgbotapi.BotCommand{Command: entry.command, Description: entry.description})
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("set my commands: %w", err)
	}

	return nil
}

// HandleUpdate routes one update. Updates without a text message from a user
// are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return nil
	}

	if message.IsCommand() {
		if !b.addressedCommand(message) {
			return nil
		}
		handler, ok := b.commands[strings.ToLower(message.Command())]
		if !ok {
			return nil
		}
		b.trackCommand(ctx, message)
		if err := handler(ctx, message); err != nil {
			return fmt.Errorf("command /%s: %w", message.Command(), err)
		}
		return nil
	}

	if strings.TrimSpace(message.Text) == "" || !b.shouldRespond(message) {
		return nil
	}

	b.trackCommand(ctx, message)
	if link := linkPattern.FindString(message.Text); link != "" {
		return b.handleLink(ctx, message, link)
	}

	return b.replyText(ctx, message, textSendLink)
}

// addressedCommand reports whether a command targets this bot. Commands
// without an @suffix are always accepted.
func (b *Bot) addressedCommand(message *tgbotapi.Message) bool {
	_, target, ok := strings.Cut(message.CommandWithAt(), "@")
	if !ok {
		return true
	}

	return strings.EqualFold(target, b.username)
}

// shouldRespond gates plain text: private chats always pass, groups need a
// mention of the bot or a reply to one of its messages.
func (b *Bot) shouldRespond(message *tgbotapi.Message) bool {
	if message.Chat.IsPrivate() {
		return true
	}
	if reply := message.ReplyToMessage; reply != nil && reply.From != nil &&
		strings.EqualFold(reply.From.UserName, b.username) {
		return true
	}

	return b.mentioned(message)
}

func (b *Bot) mentioned(message *tgbotapi.Message) bool {
	if b.username == "" {
		return false
	}

	want := "@" + b.username
	units := relay.EncodeText(message.Text)
	for _, entity := range message.Entities {
		if entity.Type != "mention" {
			continue
		}
		if entity.Offset < 0 || entity.Length <= 0 || entity.Offset+entity.Length > len(units) {
			continue
		}
		if strings.EqualFold(relay.DecodeText(units[entity.Offset:entity.Offset+entity.Length]), want) {
			return true
		}
	}

	return false
}

// trackCommand remembers the user's message for /clear in private chats.
func (b *Bot) trackCommand(ctx context.Context, message *tgbotapi.Message) {
	if !message.Chat.IsPrivate() {
		return
	}
	if err := b.deps.Sessions.RecordCommand(ctx, message.From.ID, message.MessageID); err != nil {
		b.cfg.logger.WarnContext(ctx, "track command message failed", "user_id", message.From.ID, "error", err)
	}
}

// trackSent remembers a bot message for /clear in private chats.
func (b *Bot) trackSent(ctx context.Context, message *tgbotapi.Message, ids ...int) {
	if !message.Chat.IsPrivate() || len(ids) == 0 {
		return
	}
	if err := b.deps.Sessions.RecordSent(ctx, message.From.ID, ids...); err != nil {
		b.cfg.logger.WarnContext(ctx, "track sent message failed", "user_id", message.From.ID, "error", err)
	}
}

// reply answers message in its chat and tracks the answer.
func (b *Bot) reply(ctx context.Context, message *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	config := tgbotapi.NewMessage(message.Chat.ID, text)
	config.ReplyToMessageID = message.MessageID
	sent, err := b.api.Send(config)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("reply in chat %d: %w", message.Chat.ID, err)
	}
	b.trackSent(ctx, message, sent.MessageID)

	return sent, nil
}

func (b *Bot) replyText(ctx context.Context, message *tgbotapi.Message, text string) error {
	_, err := b.reply(ctx, message, text)
	return err
}

// edit rewrites a status message; failures are logged only.
func (b *Bot) edit(ctx context.Context, status tgbotapi.Message, text string) {
	if status.Chat == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewEditMessageText(status.Chat.ID, status.MessageID, text)); err != nil {
		b.cfg.logger.DebugContext(ctx, "edit status message failed", "message_id", status.MessageID, "error", err)
	}
}

// commandArgs splits command arguments on whitespace.
func commandArgs(message *tgbotapi.Message) []string {
	return strings.Fields(message.CommandArguments())
}
