package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	colorTop   = 0x00ff00
	colorBlue  = 0x3498db
	colorGreen = 0x2ecc71
	colorRed   = 0xe74c3c

	// Discord rejects the whole message when an embed exceeds these.
	maxEmbedTitle       = 256
	maxEmbedFieldName   = 256
	maxEmbedDescription = 4096
	maxRecentLineRunes  = 300
)

func embedReply(embed *discordgo.MessageEmbed) *discordgo.MessageSend {
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}

func withFooter(embed *discordgo.MessageEmbed, age cacheAge) *discordgo.MessageEmbed {
	if text := age.footer(); text != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: text}
	}
	return embed
}

func renderTopReply(res topResult) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Top %d Users", defaultTopN),
		Color: colorTop,
	}
	if len(res.Entries) == 0 {
		embed.Description = "No scores recorded yet."
	}
	for i, entry := range res.Entries {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  truncateRunes(fmt.Sprintf("%d. %s", i+1, entry.User), maxEmbedFieldName),
			Value: "Score: " + strconv.FormatInt(entry.Score, 10),
		})
	}
	return embedReply(withFooter(embed, res.Staleness))
}

func messageLine(msg chatMessage) string {
	return msg.Time + ": " + msg.Content
}

func renderUserReply(view userView) *discordgo.MessageSend {
	var desc strings.Builder
	fmt.Fprintf(&desc, "Total Messages: %d\nRecent Messages:", view.TotalMessages)
	for _, msg := range view.Recent {
		desc.WriteByte('\n')
		desc.WriteString(truncateRunes(messageLine(msg), maxRecentLineRunes))
	}
	embed := &discordgo.MessageEmbed{
		Title:       truncateRunes("User: "+view.Name, maxEmbedTitle),
		Description: truncateRunes(desc.String(), maxEmbedDescription),
		Color:       colorBlue,
	}

	reply := embedReply(withFooter(embed, view.Staleness))
	reply.Files = []*discordgo.File{historyAttachment(view)}
	return reply
}

// historyAttachment is the user's full log as a text file, oldest first.
func historyAttachment(view userView) *discordgo.File {
	var b strings.Builder
	for i, msg := range view.History {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(messageLine(msg))
	}
	return &discordgo.File{
		Name:        attachmentName(view.Name) + "_messages.txt",
		ContentType: "text/plain; charset=utf-8",
		Reader:      strings.NewReader(b.String()),
	}
}

// attachmentName keeps a username usable as a file name.
func attachmentName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return "user"
	}
	return cleaned
}

func renderTotalReply(totals totalsView) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title: "Total Messages and Users Logged",
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total Messages", Value: strconv.FormatInt(totals.TotalMessages, 10)},
			{Name: "Total Users", Value: strconv.Itoa(totals.TotalUsers)},
		},
	}
	return embedReply(withFooter(embed, totals.Staleness))
}

// renderHelpReply renders the overview for cmdUnknown, otherwise the help
// for one command.
func renderHelpReply(topic commandID, prefix string) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{Color: colorBlue}
	switch topic {
	case cmdTop:
		embed.Title = "Help: " + prefix + "top"
		embed.Description = "Show the top 10 users by score."
	case cmdUser:
		embed.Title = "Help: " + prefix + "user <username>"
		embed.Description = "Show information about a specific user.\n\nArguments:\n- username: The username of the user to show information about."
	case cmdTotal:
		embed.Title = "Help: " + prefix + "total"
		embed.Description = "Show the total number of messages and users logged."
	case cmdHelp:
		embed.Title = "Help: " + prefix + "help [command]"
		embed.Description = "Show detailed information about a specific command."
	default:
		embed.Title = "Help"
		embed.Description = "List of available commands:"
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: prefix + "top", Value: "Show the top 10 users by score."},
			{Name: prefix + "user <username>", Value: "Show information about a specific user."},
			{Name: prefix + "total", Value: "Show the total number of messages and users logged."},
			{Name: prefix + "help [command]", Value: "Show detailed information about a specific command."},
		}
	}
	return embedReply(embed)
}

func renderHelpNotFound() *discordgo.MessageSend {
	return embedReply(&discordgo.MessageEmbed{
		Title:       "Help",
		Description: "Command not found.",
		Color:       colorRed,
	})
}

func renderErrorReply(id commandID, err error, prefix string) *discordgo.MessageSend {
	var desc string
	switch {
	case errors.Is(err, errMissingArgument):
		desc = fmt.Sprintf("Please specify a username after %s%s.", prefix, id)
	case errors.Is(err, errUserNotFound):
		desc = "User not found or has not sent any messages yet."
	case errors.Is(err, errNoData):
		desc = "No data has been cached yet. Try again in a couple of minutes."
	default:
		desc = "An error occurred: " + err.Error()
	}
	return embedReply(&discordgo.MessageEmbed{
		Title:       "Error",
		Description: truncateRunes(desc, maxEmbedDescription),
		Color:       colorRed,
	})
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
