package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/batch"
	"relaybot/internal/linkstore"
	"relaybot/internal/pipeline"
	"relaybot/pkg/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	textSendLink          = "请发送 Telegram 消息链接。如需帮助，请使用 /help 命令。"
	textInvalidLink       = "请发送有效的 Telegram 消息链接。"
	textFetchFailed       = "无法获取该消息，请检查链接或权限。"
	textRandomUsage       = "请提供消息链接。\n用法: /random https://t.me/channel_name/message_id [数量]"
	textCountNotPositive  = "发送数量必须大于0。"
	textCountTooLarge     = "发送数量不能超过50条。"
	textCountNotNumber    = "请输入有效的数字作为发送数量。"
	textRandomEmpty       = "未能找到有效消息，请检查链接或稍后重试。"
	textNothingToDelete   = "没有可删除的消息。"
	textDeleteFailed      = "删除失败，可能消息已被删除或超过48小时。"
	textStopReceived      = "已收到停止指令，正在尝试中断批量转发。"
	textUserClientMissing = "❌ 用户客户端未启动，无法收集频道历史消息。\n请重启机器人并正确完成用户账号登录。"
	textCollectUsage      = "用法: /collectlinks <频道用户名或ID>\n例如: /collectlinks @yourchannel 或 /collectlinks https://t.me/yourchannel"
	textNoLinkFiles       = "还没有收集任何频道数据。"
	textSendToUsage       = "用法: /sendto <链接文件名或频道名或频道链接或@频道名> <目标频道>\n" +
		"例如: /sendto yourchannel_links.txt @targetchannel\n" +
		"或: /sendto @yourchannel @targetchannel"
	textCloneStopped = "批量转发已被手动停止。"
)

const textHelp = "将 Telegram 消息链接发送给我，我会尝试获取并转发该消息给你。\n" +
	"支持的链接格式：\n" +
	"- https://t.me/channel_name/message_id\n" +
	"- https://t.me/c/channel_id/message_id\n\n" +
	"另外，你也可以使用以下命令：\n" +
	"/random https://t.me/channel_name/message_id     # 随机发送10条消息\n" +
	"/random https://t.me/channel_name/message_id 5   # 随机发送5条消息\n" +
	"/random @channel 5                               # 从频道最新消息中随机发送\n" +
	"/clear                                           # 删除最近发送的消息\n" +
	"/collectlinks @yourchannel                       # 收集频道历史消息链接\n" +
	"/listlinks                                       # 查看已收集的频道数据\n" +
	"/sendto yourchannel_links.txt @targetchannel     # 克隆频道到目标频道\n" +
	"/stop                                            # 停止批量转发任务\n\n" +
	"📝 文本处理配置命令：\n" +
	"/config                                          # 查看当前配置\n" +
	"/config replace 原文本:新文本                    # 添加替换规则\n" +
	"/config delete 正则表达式                        # 添加删除规则\n" +
	"/config append 追加文本                         # 设置追加文本\n" +
	"/config ad 广告关键词                           # 添加广告关键词\n" +
	"/config clear 类型                               # 清除指定类型规则\n" +
	"/config remove 类型 规则                         # 删除特定规则\n" +
	"/config reset                                    # 重置所有配置\n" +
	"/config save                                     # 保存配置到文件\n" +
	"/config load                                     # 从文件加载配置\n" +
	"/testconfig 测试文本                             # 测试文本处理效果\n\n" +
	"📌 群聊使用提示：\n" +
	"• 在群聊中需要@我才会响应\n" +
	"• 也可以回复我的消息来触发\n" +
	"• 命令始终有效，无需@我"

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	text := fmt.Sprintf("你好，%s！\n请发送 Telegram 消息链接，我会将消息转发给你。\n\n"+
		"💡 在群聊中使用时，请@我或回复我的消息。", message.From.FirstName)

	return b.replyText(ctx, message, text)
}

func (b *Bot) handleHelp(ctx context.Context, message *tgbotapi.Message) error {
	return b.replyText(ctx, message, textHelp)
}

func (b *Bot) handleLink(ctx context.Context, message *tgbotapi.Message, link string) error {
	source, err := relay.ParseLink(link)
	if err != nil {
		return b.replyText(ctx, message, textInvalidLink)
	}

	outcome := b.deps.Forwarder.SendToUser(b.withRateLimitNotice(ctx, message), source, message.From.ID)
	if !outcome.OK() {
		b.cfg.logger.InfoContext(ctx, "forward link failed",
			"user_id", message.From.ID,
			"source", link,
			"status", string(outcome.Status),
			"error", outcome.Err,
		)
		return b.replyText(ctx, message, textFetchFailed)
	}

	return nil
}

func (b *Bot) handleRandom(ctx context.Context, message *tgbotapi.Message) error {
	args := commandArgs(message)
	if len(args) == 0 {
		return b.replyText(ctx, message, textRandomUsage)
	}

	channel, upper, ok := parseRandomSource(args[0])
	if !ok {
		return b.replyText(ctx, message, textInvalidLink)
	}

	count := batch.DefaultRandomCount
	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		switch {
		case err != nil:
			return b.replyText(ctx, message, textCountNotNumber)
		case parsed <= 0:
			return b.replyText(ctx, message, textCountNotPositive)
		case parsed > batch.MaxRandomCount:
			return b.replyText(ctx, message, textCountTooLarge)
		}
		count = parsed
	}

	report, err := b.deps.Jobs.Random(b.withRateLimitNotice(ctx, message), message.From.ID, channel, upper, count)
	switch {
	case errors.Is(err, batch.ErrHistoryUnavailable):
		return b.replyText(ctx, message, textUserClientMissing)
	case err != nil && !errors.Is(err, relay.ErrStopped):
		b.cfg.logger.ErrorContext(ctx, "random sample failed", "user_id", message.From.ID, "error", err)
		if report.Sent == 0 {
			return b.replyText(ctx, message, fmt.Sprintf("获取随机消息时出错: %v", err))
		}
	}
	if report.Sent == 0 {
		return b.replyText(ctx, message, textRandomEmpty)
	}

	return b.replyText(ctx, message, fmt.Sprintf("已成功发送 %d 条随机消息！\n使用 /clear 可以删除这些消息。", report.Sent))
}

// parseRandomSource accepts a message link, whose id bounds the sample, or
// a channel reference sampled up to its latest message.
func parseRandomSource(arg string) (relay.ChannelRef, int, bool) {
	if ref, err := relay.ParseLink(arg); err == nil {
		return ref.Channel, ref.ID, true
	}
	if channel, err := relay.ParseChannelRef(arg); err == nil {
		return channel, 0, true
	}

	return relay.ChannelRef{}, 0, false
}

func (b *Bot) handleClear(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	tracked, err := b.deps.Sessions.DrainForDeletion(ctx, userID)
	if err != nil {
		return fmt.Errorf("drain tracked messages: %w", err)
	}
	// The /clear message itself was tracked on arrival and only counts when
	// something else is pending.
	ids := withoutID(tracked.All(), message.MessageID)
	if len(ids) == 0 {
		b.trackCommand(ctx, message)
		return b.replyText(ctx, message, textNothingToDelete)
	}
	if message.Chat.IsPrivate() {
		ids = append(ids, message.MessageID)
	}
	deleted := len(ids)

	status, err := b.api.Send(tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("正在删除 %d 条消息...", deleted)))
	if err != nil {
		return fmt.Errorf("send delete status: %w", err)
	}
	if message.Chat.IsPrivate() {
		ids = append(ids, status.MessageID)
	} else {
		defer b.deleteChatMessage(ctx, status)
	}

	if err := b.deps.Deleter.DeleteMessages(ctx, relay.UserDestination(userID), ids); err != nil {
		b.cfg.logger.ErrorContext(ctx, "delete tracked messages failed", "user_id", userID, "count", len(ids), "error", err)
		b.edit(ctx, status, textDeleteFailed)
		return nil
	}
	b.cfg.logger.InfoContext(ctx, "tracked messages deleted", "user_id", userID, "count", len(ids))

	notice, err := b.api.Send(tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("已成功删除 %d 条消息！", deleted)))
	if err != nil {
		return fmt.Errorf("send delete result: %w", err)
	}

	timer := time.NewTimer(b.cfg.noticeTTL)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}
	b.deleteChatMessage(ctx, notice)

	return nil
}

func withoutID(ids []int, excluded int) []int {
	out := ids[:0:0]
	for _, id := range ids {
		if id != excluded {
			out = append(out, id)
		}
	}

	return out
}

func (b *Bot) deleteChatMessage(ctx context.Context, message tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		b.cfg.logger.DebugContext(ctx, "delete notice failed", "message_id", message.MessageID, "error", err)
	}
}

func (b *Bot) handleStop(ctx context.Context, message *tgbotapi.Message) error {
	if err := b.deps.Jobs.Stop(ctx, message.From.ID); err != nil {
		return fmt.Errorf("request stop: %w", err)
	}

	return b.replyText(ctx, message, textStopReceived)
}

func (b *Bot) handleCollect(ctx context.Context, message *tgbotapi.Message) error {
	if !b.deps.Jobs.HasHistory() {
		return b.replyText(ctx, message, textUserClientMissing)
	}

	args := commandArgs(message)
	if len(args) == 0 {
		return b.replyText(ctx, message, textCollectUsage)
	}
	channel, err := relay.ParseChannelRef(args[0])
	if err != nil {
		return b.replyText(ctx, message, fmt.Sprintf("无法解析频道 %s，请检查频道名或链接是否正确。", args[0]))
	}

	status, err := b.reply(ctx, message, fmt.Sprintf("正在收集 %s 的数据，请稍候...", args[0]))
	if err != nil {
		return err
	}

	report, err := b.deps.Jobs.Collect(ctx, channel, func(ctx context.Context, progress batch.Progress) {
		b.edit(ctx, status, fmt.Sprintf("正在收集 %s 的数据，请稍候...\n已扫描: %d/%d | 已收集: %d",
			args[0], progress.Done, progress.Total, progress.Sent))
	})
	if err != nil {
		b.cfg.logger.ErrorContext(ctx, "collect links failed", "source", channel.String(), "error", err)
		return b.replyText(ctx, message, fmt.Sprintf("收集历史数据时出错: %v", err))
	}

	return b.replyText(ctx, message, fmt.Sprintf("收集完成，收集了 %d 条数据，已保存到 %s。", report.Links, report.Path))
}

func (b *Bot) handleListLinks(ctx context.Context, message *tgbotapi.Message) error {
	files, err := b.deps.Links.List()
	if err != nil {
		b.cfg.logger.ErrorContext(ctx, "list link files failed", "error", err)
		return b.replyText(ctx, message, fmt.Sprintf("列出数据文件时出错: %v", err))
	}
	if len(files) == 0 {
		return b.replyText(ctx, message, textNoLinkFiles)
	}

	lines := make([]string, 0, len(files))
	for _, file := range files {
		lines = append(lines, fmt.Sprintf("@%s : %d 条", file.Channel, file.Count))
	}

	return b.replyText(ctx, message, "已收集的频道数据：\n"+strings.Join(lines, "\n"))
}

func (b *Bot) handleSendTo(ctx context.Context, message *tgbotapi.Message) error {
	args := commandArgs(message)
	if len(args) < 2 {
		return b.replyText(ctx, message, textSendToUsage)
	}
	dest, err := relay.ParseChannelRef(args[1])
	if err != nil {
		return b.replyText(ctx, message, fmt.Sprintf("无法解析目标频道 %s，请检查频道名或链接是否正确。", args[1]))
	}

	path := b.deps.Links.ResolveSource(args[0])
	links, err := b.deps.Links.Read(path)
	if errors.Is(err, linkstore.ErrNoLinkFile) {
		return b.replyText(ctx, message, fmt.Sprintf("文件 %s 不存在，请先用 /collectlinks 命令生成。", filepath.Base(path)))
	}
	if err != nil {
		return b.replyText(ctx, message, fmt.Sprintf("批量转发消息时出错: %v", err))
	}
	if len(links) == 0 {
		return b.replyText(ctx, message, fmt.Sprintf("文件 %s 没有可用的频道数据。", filepath.Base(path)))
	}

	status, err := b.reply(ctx, message,
		fmt.Sprintf("开始向 %s 转发 %d 条消息，请耐心等待...\n如需中断，请发送 /stop", args[1], len(links)))
	if err != nil {
		return err
	}

	report, err := b.deps.Jobs.CloneFile(b.withRateLimitNotice(ctx, message), message.From.ID, args[0], dest,
		func(ctx context.Context, progress batch.Progress) {
			b.edit(ctx, status, fmt.Sprintf("正在向 %s 转发...\n进度: %d/%d | 成功: %d | 失败: %d",
				args[1], progress.Done, progress.Total, progress.Sent, progress.Failed))
		})
	switch {
	case errors.Is(err, relay.ErrStopped):
		return b.replyText(ctx, message, textCloneStopped)
	case err != nil:
		b.cfg.logger.ErrorContext(ctx, "clone failed", "destination", dest.String(), "error", err)
		return b.replyText(ctx, message, fmt.Sprintf("批量转发消息时出错: %v", err))
	}

	result := fmt.Sprintf("转发完成！成功: %d 条，失败: %d 条。", report.Sent, report.Failed+report.NotFound)
	if report.Filtered > 0 {
		result += fmt.Sprintf("\n已跳过广告: %d 条。", report.Filtered)
	}

	return b.replyText(ctx, message, result)
}

// withRateLimitNotice tells the user about every rate-limit wait of the
// deliveries made under the returned context.
func (b *Bot) withRateLimitNotice(ctx context.Context, message *tgbotapi.Message) context.Context {
	return pipeline.ContextWithRateLimitNotify(ctx, func(ctx context.Context, wait time.Duration, _ int) {
		seconds := int(math.Ceil(wait.Seconds()))
		if _, err := b.reply(ctx, message, fmt.Sprintf("⏳ 遇到限流，等待 %d 秒后继续...", seconds)); err != nil {
			b.cfg.logger.WarnContext(ctx, "send rate limit notice failed", "error", err)
		}
	})
}
