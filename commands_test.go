package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in     string
		ok     bool
		id     commandID
		args   []string
		prefix string
	}{
		{in: "?top", ok: true, id: cmdTop},
		{in: "?total", ok: true, id: cmdTotal},
		{in: "?user alice", ok: true, id: cmdUser, args: []string{"alice"}},
		{in: `?user "two words"`, ok: true, id: cmdUser, args: []string{"two words"}},
		{in: "?help user", ok: true, id: cmdHelp, args: []string{"user"}},
		{in: "?help", ok: true, id: cmdHelp},
		{in: "?Top", ok: false},
		{in: "?bogus", ok: false},
		{in: "?", ok: false},
		{in: "top", ok: false},
		{in: "hello ?top", ok: false},
		{in: "!top", ok: true, id: cmdTop, prefix: "!"},
		{in: "?top", ok: false, prefix: "!"},
	}
	for _, tt := range tests {
		prefix := tt.prefix
		if prefix == "" {
			prefix = "?"
		}
		cmd, ok := parseCommand(tt.in, prefix)
		if ok != tt.ok {
			t.Fatalf("parseCommand(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
		if !ok {
			continue
		}
		if cmd.ID != tt.id {
			t.Fatalf("parseCommand(%q) id = %v, want %v", tt.in, cmd.ID, tt.id)
		}
		if strings.Join(cmd.Args, "|") != strings.Join(tt.args, "|") {
			t.Fatalf("parseCommand(%q) args = %q, want %q", tt.in, cmd.Args, tt.args)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"a b\tc", []string{"a", "b", "c"}},
		{`user "a b"  c`, []string{"user", "a b", "c"}},
		{`user ""`, []string{"user", ""}},
		{`x "unterminated quote`, []string{"x", "unterminated quote"}},
	}
	for _, tt := range tests {
		got := splitArgs(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	}
}

func newTestDispatcher(t *testing.T, store *cacheStore, clock *testClock, limiter *commandRateLimiter) *commandDispatcher {
	t.Helper()
	return newCommandDispatcher(queriesAt(store, clock), "?", limiter, nil)
}

func singleEmbed(t *testing.T, reply *discordgo.MessageSend) *discordgo.MessageEmbed {
	t.Helper()
	if reply == nil || len(reply.Embeds) != 1 {
		t.Fatalf("expected one embed, got %+v", reply)
	}
	return reply.Embeds[0]
}

func TestDispatcher_NonCommandsAreIgnored(t *testing.T) {
	d := newTestDispatcher(t, newCacheStore(), newTestClock(time.Now()), nil)
	for _, content := range []string{"hello", "?unknown", "", "  "} {
		if reply, ok := d.handle("u1", content); ok || reply != nil {
			t.Fatalf("handle(%q) should be ignored", content)
		}
	}
}

func TestDispatcher_NoDataBeforeFirstRefresh(t *testing.T) {
	d := newTestDispatcher(t, newCacheStore(), newTestClock(time.Now()), nil)
	for _, content := range []string{"?top", "?total", "?user alice"} {
		reply, ok := d.handle("u1", content)
		if !ok {
			t.Fatalf("handle(%q) not handled", content)
		}
		embed := singleEmbed(t, reply)
		if embed.Title != "Error" || !strings.Contains(embed.Description, "No data") {
			t.Fatalf("handle(%q) = %q / %q", content, embed.Title, embed.Description)
		}
	}
}

func TestDispatcher_Top(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	store := storeWithSnapshot(t, clock, sampleScores(), sampleMessages(), 4, base)
	clock.advance(65 * time.Second)
	d := newTestDispatcher(t, store, clock, nil)

	reply, ok := d.handle("u1", "?top")
	if !ok {
		t.Fatalf("not handled")
	}
	embed := singleEmbed(t, reply)
	if embed.Title != "Top 10 Users" {
		t.Fatalf("title = %q", embed.Title)
	}
	if len(embed.Fields) != 3 {
		t.Fatalf("fields = %d", len(embed.Fields))
	}
	if embed.Fields[0].Name != "1. bob" || embed.Fields[0].Value != "Score: 90" {
		t.Fatalf("field 0 = %+v", embed.Fields[0])
	}
	if embed.Fields[1].Name != "2. carol" || embed.Fields[2].Name != "3. alice" {
		t.Fatalf("fields = %q, %q", embed.Fields[1].Name, embed.Fields[2].Name)
	}
	if embed.Footer == nil || embed.Footer.Text != "Last cached time: 1 minute 5 seconds ago" {
		t.Fatalf("footer = %+v", embed.Footer)
	}
}

func TestDispatcher_UserReplyAndAttachment(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	store := storeWithSnapshot(t, clock, sampleScores(), sampleMessages(), 4, base)
	d := newTestDispatcher(t, store, clock, nil)

	reply, ok := d.handle("u1", "?user alice")
	if !ok {
		t.Fatalf("not handled")
	}
	embed := singleEmbed(t, reply)
	if embed.Title != "User: alice" {
		t.Fatalf("title = %q", embed.Title)
	}
	wantDesc := "Total Messages: 3\nRecent Messages:\n2024-01-01 10:09: bye\n2024-01-01 10:05: yo\n2024-01-01 10:00: hi"
	if embed.Description != wantDesc {
		t.Fatalf("description = %q", embed.Description)
	}
	if embed.Footer != nil {
		t.Fatalf("fresh cache should have no footer, got %q", embed.Footer.Text)
	}

	if len(reply.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(reply.Files))
	}
	file := reply.Files[0]
	if file.Name != "alice_messages.txt" {
		t.Fatalf("file name = %q", file.Name)
	}
	body, err := io.ReadAll(file.Reader)
	if err != nil {
		t.Fatalf("read attachment: %v", err)
	}
	wantBody := "2024-01-01 10:00: hi\n2024-01-01 10:05: yo\n2024-01-01 10:09: bye"
	if string(body) != wantBody {
		t.Fatalf("attachment = %q", body)
	}
}

func TestDispatcher_UserErrors(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	store := storeWithSnapshot(t, clock, sampleScores(), sampleMessages(), 4, base)
	d := newTestDispatcher(t, store, clock, nil)

	reply, _ := d.handle("u1", "?user")
	if got := singleEmbed(t, reply).Description; got != "Please specify a username after ?user." {
		t.Fatalf("missing arg = %q", got)
	}
	reply, _ = d.handle("u1", "?user nobody")
	if got := singleEmbed(t, reply).Description; got != "User not found or has not sent any messages yet." {
		t.Fatalf("not found = %q", got)
	}
	if len(reply.Files) != 0 {
		t.Fatalf("error replies carry no attachment")
	}
}

func TestDispatcher_Total(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newTestClock(base)
	store := storeWithSnapshot(t, clock, sampleScores(), sampleMessages(), 12345, base)
	d := newTestDispatcher(t, store, clock, nil)

	reply, _ := d.handle("u1", "?total")
	embed := singleEmbed(t, reply)
	if embed.Title != "Total Messages and Users Logged" || len(embed.Fields) != 2 {
		t.Fatalf("embed = %+v", embed)
	}
	if embed.Fields[0].Value != "12345" || embed.Fields[1].Value != "3" {
		t.Fatalf("values = %q, %q", embed.Fields[0].Value, embed.Fields[1].Value)
	}
}

func TestDispatcher_Help(t *testing.T) {
	d := newTestDispatcher(t, newCacheStore(), newTestClock(time.Now()), nil)

	embed := singleEmbed(t, mustHandle(t, d, "?help"))
	if embed.Title != "Help" || len(embed.Fields) != 4 {
		t.Fatalf("overview = %+v", embed)
	}
	embed = singleEmbed(t, mustHandle(t, d, "?help top"))
	if embed.Title != "Help: ?top" {
		t.Fatalf("help top title = %q", embed.Title)
	}
	embed = singleEmbed(t, mustHandle(t, d, "?help ?user"))
	if embed.Title != "Help: ?user <username>" {
		t.Fatalf("help user title = %q", embed.Title)
	}
	embed = singleEmbed(t, mustHandle(t, d, "?help nope"))
	if embed.Description != "Command not found." {
		t.Fatalf("help nope = %q", embed.Description)
	}
}

func mustHandle(t *testing.T, d *commandDispatcher, content string) *discordgo.MessageSend {
	t.Helper()
	reply, ok := d.handle("u1", content)
	if !ok {
		t.Fatalf("handle(%q) not handled", content)
	}
	return reply
}

func TestDispatcher_RateLimitsPerAuthor(t *testing.T) {
	clock := newTestClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := newCommandRateLimiter(1, 1)
	limiter.now = clock.now
	reg := prometheus.NewRegistry()
	metrics := newBotMetrics(reg)
	d := newCommandDispatcher(queriesAt(newCacheStore(), clock), "?", limiter, metrics)

	if _, ok := d.handle("u1", "?help"); !ok {
		t.Fatalf("first command should pass")
	}
	if _, ok := d.handle("u1", "?help"); ok {
		t.Fatalf("second command within the window should be dropped")
	}
	if _, ok := d.handle("u2", "?help"); !ok {
		t.Fatalf("other authors have their own bucket")
	}
	if _, ok := d.handle("u1", "not a command"); ok {
		t.Fatalf("non-commands are never handled")
	}
	clock.advance(2 * time.Minute)
	if _, ok := d.handle("u1", "?help"); !ok {
		t.Fatalf("bucket should refill")
	}

	if got := gatheredValue(t, reg, "nuhbot_commands_rate_limited_total"); got != 1 {
		t.Fatalf("rate limited = %v, want 1", got)
	}
	if got := gatheredValue(t, reg, "nuhbot_commands_total"); got != 3 {
		t.Fatalf("commands = %v, want 3", got)
	}
}
