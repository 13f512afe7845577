package main

import (
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const defaultCommandPrefix = "?"

// commandID is the closed set of chat commands.
type commandID int

const (
	cmdUnknown commandID = iota
	cmdTop
	cmdUser
	cmdTotal
	cmdHelp
)

func (c commandID) String() string {
	switch c {
	case cmdTop:
		return "top"
	case cmdUser:
		return "user"
	case cmdTotal:
		return "total"
	case cmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

func lookupCommand(name string) commandID {
	switch name {
	case "top":
		return cmdTop
	case "user":
		return cmdUser
	case "total":
		return cmdTotal
	case "help":
		return cmdHelp
	default:
		return cmdUnknown
	}
}

type parsedCommand struct {
	ID   commandID
	Args []string
}

// parseCommand recognises "<prefix><name> [args...]". Names are
// case-sensitive; ok is false for anything that is not one of our commands.
func parseCommand(content, prefix string) (parsedCommand, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return parsedCommand{}, false
	}
	fields := splitArgs(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return parsedCommand{}, false
	}
	id := lookupCommand(fields[0])
	if id == cmdUnknown {
		return parsedCommand{}, false
	}
	return parsedCommand{ID: id, Args: fields[1:]}, true
}

// splitArgs splits on whitespace; a double-quoted run is one argument, so
// `user "two words"` works for names with spaces.
func splitArgs(s string) []string {
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	flush := func() {
		if started {
			out = append(out, cur.String())
		}
		cur.Reset()
		started = false
	}
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	flush()
	return out
}

// commandDispatcher turns chat text into replies. It never returns an error:
// query failures become error replies.
type commandDispatcher struct {
	queries *queryService
	prefix  string
	limiter *commandRateLimiter
	metrics *botMetrics
}

func newCommandDispatcher(queries *queryService, prefix string, limiter *commandRateLimiter, metrics *botMetrics) *commandDispatcher {
	if prefix == "" {
		prefix = defaultCommandPrefix
	}
	return &commandDispatcher{queries: queries, prefix: prefix, limiter: limiter, metrics: metrics}
}

// handle returns the reply for content, or ok=false when the message is not
// a command or the author is over the rate limit.
func (d *commandDispatcher) handle(authorID, content string) (*discordgo.MessageSend, bool) {
	cmd, ok := parseCommand(strings.TrimSpace(content), d.prefix)
	if !ok {
		return nil, false
	}
	if !d.limiter.allow(authorID) {
		d.metrics.ObserveRateLimited()
		logger.Debug("command rate limited", "author", authorID, "command", cmd.ID)
		return nil, false
	}
	reply := d.execute(cmd)
	d.metrics.ObserveCommand(cmd.ID.String())
	return reply, true
}

func (d *commandDispatcher) execute(cmd parsedCommand) *discordgo.MessageSend {
	switch cmd.ID {
	case cmdTop:
		res, err := d.queries.top(defaultTopN)
		if err != nil {
			return d.failure(cmd.ID, err)
		}
		return renderTopReply(res)
	case cmdUser:
		if len(cmd.Args) == 0 || cmd.Args[0] == "" {
			return d.failure(cmd.ID, errMissingArgument)
		}
		view, err := d.queries.user(cmd.Args[0])
		if err != nil {
			return d.failure(cmd.ID, err)
		}
		return renderUserReply(view)
	case cmdTotal:
		totals, err := d.queries.total()
		if err != nil {
			return d.failure(cmd.ID, err)
		}
		return renderTotalReply(totals)
	case cmdHelp:
		topic := cmdUnknown
		if len(cmd.Args) > 0 {
			topic = lookupCommand(strings.TrimPrefix(cmd.Args[0], d.prefix))
			if topic == cmdUnknown {
				return renderHelpNotFound()
			}
		}
		return renderHelpReply(topic, d.prefix)
	default:
		return nil
	}
}

func (d *commandDispatcher) failure(id commandID, err error) *discordgo.MessageSend {
	switch {
	case errors.Is(err, errNoData), errors.Is(err, errUserNotFound), errors.Is(err, errMissingArgument):
		logger.Debug("command failed", "command", id, "error", err)
	default:
		logger.Warn("command failed", "command", id, "error", err)
	}
	return renderErrorReply(id, err, d.prefix)
}
