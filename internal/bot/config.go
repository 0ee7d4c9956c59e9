package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"relaybot/internal/textrules"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const textConfigUsage = "📝 使用方法：\n" +
	"• /config replace 原文本:新文本\n" +
	"• /config delete 正则表达式\n" +
	"• /config append 追加的文本\n" +
	"• /config ad 广告关键词\n" +
	"• /config clear 类型 - 清除指定类型的所有规则\n" +
	"• /config remove 类型 规则 - 删除特定规则\n" +
	"• /config reset - 重置所有配置\n" +
	"• /config save - 保存配置到文件\n" +
	"• /config load - 从文件加载配置\n" +
	"• /config reload - 重新加载配置文件（手动修改后使用）"

func (b *Bot) handleConfig(ctx context.Context, message *tgbotapi.Message) error {
	sub, rest := splitSubcommand(message.CommandArguments())
	if sub == "" {
		return b.replyText(ctx, message, b.describeRules())
	}

	rules := b.deps.Rules
	switch strings.ToLower(sub) {
	case "replace":
		if rest == "" {
			return b.replyText(ctx, message, "❌ 用法：/config replace 原文本:新文本")
		}
		rule, err := rules.AddReplace(rest)
		if err != nil {
			return b.replyText(ctx, message, "❌ 替换规则格式错误！请使用：原文本:新文本")
		}
		return b.replyText(ctx, message, "✅ 已添加替换规则："+rule.String())
	case "delete":
		if rest == "" {
			return b.replyText(ctx, message, "❌ 用法：/config delete 正则表达式")
		}
		if err := rules.AddDelete(rest); err != nil {
			return b.replyText(ctx, message, fmt.Sprintf("❌ 正则表达式错误：%v", err))
		}
		return b.replyText(ctx, message, "✅ 已添加删除规则："+rest)
	case "append":
		if rest == "" {
			return b.replyText(ctx, message, "❌ 用法：/config append 要追加的文本")
		}
		rules.SetAppend(rest)
		return b.replyText(ctx, message, "✅ 已设置追加文本："+rest)
	case "ad":
		if rest == "" {
			return b.replyText(ctx, message, "❌ 用法：/config ad 广告关键词")
		}
		if err := rules.AddAdKeyword(rest); err != nil {
			return b.replyText(ctx, message, fmt.Sprintf("❌ 添加失败：%v", err))
		}
		return b.replyText(ctx, message, "✅ 已添加广告关键词："+rest)
	case "clear":
		return b.clearRules(ctx, message, rest)
	case "remove":
		return b.removeRule(ctx, message, rest)
	case "reset":
		rules.Reset()
		return b.replyText(ctx, message, "✅ 已重置所有配置")
	case "save":
		if err := rules.Save(b.cfg.rulesFile); err != nil {
			b.cfg.logger.ErrorContext(ctx, "save rules failed", "path", b.cfg.rulesFile, "error", err)
			return b.replyText(ctx, message, fmt.Sprintf("❌ 保存失败：%v", err))
		}
		return b.replyText(ctx, message, "✅ 配置已保存到 "+b.cfg.rulesFile)
	case "load":
		return b.loadRules(ctx, message, false)
	case "reload":
		return b.loadRules(ctx, message, true)
	default:
		return b.replyText(ctx, message, "❌ 未知命令！使用 /config 查看帮助")
	}
}

func (b *Bot) clearRules(ctx context.Context, message *tgbotapi.Message, rest string) error {
	if rest == "" {
		return b.replyText(ctx, message, "❌ 用法：/config clear <类型>\n支持的类型：replace, delete, append, ad")
	}
	kind, err := textrules.ParseKind(rest)
	if err != nil {
		return b.replyText(ctx, message, "❌ 无效的类型！支持：replace, delete, append, ad")
	}
	if err := b.deps.Rules.Clear(kind); err != nil {
		return b.replyText(ctx, message, fmt.Sprintf("❌ 清除失败：%v", err))
	}

	return b.replyText(ctx, message, fmt.Sprintf("✅ 已清除 %s 规则", kind))
}

func (b *Bot) removeRule(ctx context.Context, message *tgbotapi.Message, rest string) error {
	rawKind, target := splitSubcommand(rest)
	if rawKind == "" || target == "" {
		return b.replyText(ctx, message, "❌ 用法：/config remove <类型> <要删除的规则>\n支持的类型：replace, delete, ad")
	}
	kind, err := textrules.ParseKind(rawKind)
	if err != nil || kind == textrules.KindAppend {
		return b.replyText(ctx, message, "❌ 无效的类型！支持：replace, delete, ad")
	}
	if ruleCount(b.deps.Rules.Snapshot(), kind) == 0 {
		return b.replyText(ctx, message, fmt.Sprintf("❌ %s 规则为空，无需删除", kind))
	}

	removed, err := b.deps.Rules.Remove(kind, target)
	if errors.Is(err, textrules.ErrRuleNotFound) {
		return b.replyText(ctx, message, "❌ 未找到规则："+target)
	}
	if err != nil {
		return b.replyText(ctx, message, fmt.Sprintf("❌ 删除失败：%v", err))
	}

	return b.replyText(ctx, message, fmt.Sprintf("✅ 已删除 %d 条 %s 规则", removed, kind))
}

func (b *Bot) loadRules(ctx context.Context, message *tgbotapi.Message, summary bool) error {
	path := b.cfg.rulesFile
	found, err := b.deps.Rules.Load(path)
	if err != nil {
		b.cfg.logger.ErrorContext(ctx, "load rules failed", "path", path, "error", err)
		if summary {
			return b.replyText(ctx, message, fmt.Sprintf("❌ 重新加载失败：%v", err))
		}
		return b.replyText(ctx, message, fmt.Sprintf("❌ 加载失败：%v", err))
	}
	if !found {
		return b.replyText(ctx, message, fmt.Sprintf("❌ %s 文件不存在", path))
	}
	if !summary {
		return b.replyText(ctx, message, fmt.Sprintf("✅ 配置已从 %s 重新加载", path))
	}

	rules := b.deps.Rules.Snapshot()
	var text strings.Builder
	text.WriteString("✅ 配置已重新加载：\n")
	if n := len(rules.ReplaceRules); n > 0 {
		fmt.Fprintf(&text, "🔄 替换规则: %d 条\n", n)
	}
	if n := len(rules.DeletePatterns); n > 0 {
		fmt.Fprintf(&text, "🗑️ 删除规则: %d 条\n", n)
	}
	if rules.AppendText != "" {
		text.WriteString("➕ 追加文本: 已设置\n")
	}
	if n := len(rules.AdKeywords); n > 0 {
		fmt.Fprintf(&text, "🚫 广告关键词: %d 个\n", n)
	}
	fmt.Fprintf(&text, "⏱️ 发送延迟: %g 秒", rules.DelaySeconds)

	return b.replyText(ctx, message, text.String())
}

func (b *Bot) describeRules() string {
	rules := b.deps.Rules.Snapshot()

	replaceRules := make([]string, 0, len(rules.ReplaceRules))
	for _, rule := range rules.ReplaceRules {
		replaceRules = append(replaceRules, rule.String())
	}

	var text strings.Builder
	text.WriteString("📋 当前文本处理配置：\n\n")
	fmt.Fprintf(&text, "🔄 替换规则：\n%s\n\n", orNone(strings.Join(replaceRules, "|")))
	fmt.Fprintf(&text, "🗑️ 删除规则：\n%s\n\n", orNone(strings.Join(rules.DeletePatterns, "|")))
	fmt.Fprintf(&text, "➕ 追加文本：\n%s\n\n", orNone(rules.AppendText))
	fmt.Fprintf(&text, "🚫 广告关键词：\n%s\n\n", orNone(strings.Join(rules.AdKeywords, "|")))
	fmt.Fprintf(&text, "⏱️ 发送延迟：%g 秒（克隆发送时每条消息的间隔时间）\n\n", rules.DelaySeconds)
	text.WriteString(textConfigUsage)
	fmt.Fprintf(&text, "\n\n💡 提示：延迟时间（delay_seconds）需要在 %s 文件中手动修改，然后使用 /config reload 重新加载", b.cfg.rulesFile)

	return text.String()
}

func (b *Bot) handleTestConfig(ctx context.Context, message *tgbotapi.Message) error {
	input := strings.TrimSpace(message.CommandArguments())
	if input == "" {
		return b.replyText(ctx, message, "❌ 用法：/testconfig 测试文本")
	}

	processed := b.deps.Rules.Apply(input)
	verdict := "✅ 文本已处理"
	if processed == input {
		verdict = "ℹ️ 文本未发生变化"
	}

	return b.replyText(ctx, message, fmt.Sprintf("🧪 文本处理测试：\n\n📝 原始文本：\n%s\n\n🔄 处理后文本：\n%s\n\n%s",
		input, processed, verdict))
}

// splitSubcommand returns the first word of raw and the trimmed remainder.
func splitSubcommand(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	index := strings.IndexFunc(raw, unicode.IsSpace)
	if index < 0 {
		return raw, ""
	}

	return raw[:index], strings.TrimSpace(raw[index:])
}

func ruleCount(rules textrules.Rules, kind textrules.Kind) int {
	switch kind {
	case textrules.KindReplace:
		return len(rules.ReplaceRules)
	case textrules.KindDelete:
		return len(rules.DeletePatterns)
	case textrules.KindAd:
		return len(rules.AdKeywords)
	default:
		return 0
	}
}

func orNone(value string) string {
	if value == "" {
		return "无"
	}

	return value
}
