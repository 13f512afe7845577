package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// messageSender is the part of *discordgo.Session used to reply.
type messageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type discordBot struct {
	token      string
	guildID    string
	dispatcher *commandDispatcher
	dg         *discordgo.Session

	readyOnce sync.Once
}

func newDiscordBot(cfg Config, dispatcher *commandDispatcher) *discordBot {
	return &discordBot{
		token:      strings.TrimSpace(cfg.DiscordBotToken),
		guildID:    strings.TrimSpace(cfg.DiscordServerID),
		dispatcher: dispatcher,
	}
}

// start opens the gateway session. onReady runs once, on the first Ready
// event; the periodic tasks hang off it so nothing polls before the bot is
// connected.
func (b *discordBot) start(ctx context.Context, onReady func(ctx context.Context, s *discordgo.Session)) error {
	if b == nil {
		return fmt.Errorf("discord bot not configured")
	}
	if b.token == "" {
		return fmt.Errorf("discord bot token is empty")
	}

	dg, err := discordgo.New("Bot " + b.token)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentGuildMessages |
			discordgo.IntentDirectMessages |
			discordgo.IntentMessageContent,
	)

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		user := ""
		if r.User != nil {
			user = r.User.String()
		}
		logger.Info("discord connected", "user", user, "guilds", len(r.Guilds))
		b.readyOnce.Do(func() {
			if onReady != nil {
				onReady(ctx, s)
			}
		})
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		logger.Warn("discord gateway disconnected")
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		logger.Info("discord gateway resumed")
	})
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.handleMessage(s, m)
	})

	if err := dg.Open(); err != nil {
		return err
	}
	b.dg = dg
	logger.Info("discord bot started", "guild_id", b.guildID, "prefix", b.dispatcher.prefix)
	return nil
}

func (b *discordBot) handleMessage(sender messageSender, m *discordgo.MessageCreate) {
	if b == nil || sender == nil || m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if m.Author.Bot {
		return
	}
	if b.guildID != "" && m.GuildID != "" && m.GuildID != b.guildID {
		return
	}
	reply, ok := b.dispatcher.handle(m.Author.ID, m.Content)
	if !ok || reply == nil {
		return
	}
	if _, err := sender.ChannelMessageSendComplex(m.ChannelID, reply); err != nil {
		logger.Warn("discord reply failed", "channel_id", m.ChannelID, "error", err)
	}
}

func (b *discordBot) close() {
	if b == nil || b.dg == nil {
		return
	}
	_ = b.dg.Close()
}
