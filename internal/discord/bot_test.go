package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/clock"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/memory"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/syncq"
)

type sent struct {
	channelID string
	embed     *discordgo.MessageEmbed
}

type fakeSession struct {
	mu      sync.Mutex
	sent    []sent
	deleted []string
	admins  map[string]bool
	members map[string]*discordgo.Member
	guild   *discordgo.Guild
	sendErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{admins: map[string]bool{}, members: map[string]*discordgo.Member{}}
}

func (f *fakeSession) ChannelMessageSendEmbed(channelID string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sent{channelID: channelID, embed: e})
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSession) UserChannelPermissions(userID, _ string, _ ...discordgo.RequestOption) (int64, error) {
	if f.admins[userID] {
		return discordgo.PermissionAdministrator | discordgo.PermissionSendMessages, nil
	}
	return discordgo.PermissionSendMessages, nil
}

func (f *fakeSession) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return nil, errors.New("unknown member")
}

func (f *fakeSession) Guild(string, ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if f.guild == nil {
		return nil, errors.New("unknown guild")
	}
	return f.guild, nil
}

func (f *fakeSession) HeartbeatLatency() time.Duration { return 42 * time.Millisecond }

func (f *fakeSession) last(t *testing.T) *discordgo.MessageEmbed {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1].embed
}

type harness struct {
	bot     *Bot
	session *fakeSession
	clock   *clock.Manual
	svc     *rpxp.Service
	seq     int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	svc := rpxp.NewService(memory.New(), clk, nil)
	q := syncq.New(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	s := newFakeSession()
	s.admins["admin"] = true
	return &harness{bot: New(svc, q, Config{Prefix: "$"}, nil), session: s, clock: clk, svc: svc}
}

func (h *harness) say(author, content string) {
	h.seq++
	h.bot.Handle(context.Background(), h.session, Incoming{
		ID:         fmt.Sprintf("m%d", h.seq),
		GuildID:    "g1",
		ChannelID:  "c1",
		AuthorID:   author,
		AuthorName: author + "-name",
		Content:    content,
	})
}

func TestAdminCommandsRequireAdministrator(t *testing.T) {
	h := newHarness(t)

	h.say("player", "$setup")
	assert.Equal(t, "Permission denied.", h.session.last(t).Title)

	h.say("admin", "$setup")
	assert.Equal(t, "Server added to database", h.session.last(t).Description)

	h.say("admin", "$setup")
	assert.Equal(t, "Invalid input!", h.session.last(t).Title)
	assert.Equal(t, "Server already set up.", h.session.last(t).Description)

	h.say("admin", "$cooldown 7200")
	assert.Equal(t, "RP XP collection cooldown set to 2 hours.", h.session.last(t).Description)

	h.say("admin", "$settings")
	assert.Contains(t, h.session.last(t).Description, "**2 hours**")
	assert.Len(t, h.session.deleted, 5)
}

func TestRegisterChatAndCollect(t *testing.T) {
	h := newHarness(t)
	h.say("admin", "$setup")
	h.say("admin", "$xp_per_word 0.02")
	h.say("admin", "$level_falloff 5")

	h.say("bob", "$register B. [Bob] PC 3")
	assert.Equal(t, "Tupper Registered.", h.session.last(t).Title)

	sixty := "B."
	for i := 0; i < 60; i++ {
		sixty += " word"
	}
	h.say("bob", sixty)
	h.say("bob", "untagged chatter is ignored")

	h.say("bob", "$collect")
	e := h.session.last(t)
	assert.Equal(t, "bob-name collects rp xp", e.Title)
	assert.Contains(t, e.Description, "**Bob** collects **1** rp xp.")

	h.clock.Advance(time.Second)
	h.say("bob", "$collect")
	assert.Contains(t, h.session.last(t).Description, "None of your characters")

	h.say("admin", "$cooldown 3600")
	h.say("bob", "$collect")
	assert.Contains(t, h.session.last(t).Description, "on **cooldown**")

	sum, err := h.svc.Summary(context.Background(), "g1", rpxp.ScopeMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(60), sum.TotalWords)
	assert.Equal(t, int64(1), sum.TotalXP)
}

func TestParseErrorsAreReported(t *testing.T) {
	h := newHarness(t)
	h.say("bob", "$register B. Bob PC 3")
	e := h.session.last(t)
	assert.Equal(t, "Invalid input!", e.Title)
	assert.Contains(t, e.Description, "square brackets")
}

func TestListUsesMemberNames(t *testing.T) {
	h := newHarness(t)
	h.session.members["1001"] = &discordgo.Member{Nick: "Otto", User: &discordgo.User{ID: "1001", Username: "otto"}}
	h.say("admin", "$setup")
	h.say("1001", "$register O. [Olga] PC 4")
	h.say("1001", "$alter_ego o. [Olga Cat] [Olga]")
	assert.Equal(t, "Alter registered.", h.session.last(t).Title)

	h.say("bob", "$list <@1001>")
	e := h.session.last(t)
	assert.Equal(t, "Otto's tupper list.", e.Title)
	assert.Contains(t, e.Description, "- Olga 4 | `O.`")
	assert.Contains(t, e.Description, "Parented to: Olga")
	assert.Equal(t, "Requested by bob-name", e.Footer.Text)

	h.say("bob", "$list self")
	assert.Contains(t, h.session.last(t).Description, "has no registered tuppers")
}

func TestHelpAndPing(t *testing.T) {
	h := newHarness(t)
	h.say("bob", "$helpme")
	assert.Contains(t, h.session.last(t).Description, "**`$collect`**")
	h.say("bob", "$boop")
	assert.Equal(t, "Hello World! 42 ms.", h.session.last(t).Description)
}

func TestIgnoresBotsAndDirectMessages(t *testing.T) {
	h := newHarness(t)
	h.bot.Handle(context.Background(), h.session, Incoming{GuildID: "g1", ChannelID: "c1", AuthorID: "b", Bot: true, Content: "$boop"})
	h.bot.Handle(context.Background(), h.session, Incoming{ChannelID: "dm", AuthorID: "u", Content: "$boop"})
	assert.Empty(t, h.session.sent)
}

func TestFromMessagePrefersNick(t *testing.T) {
	in := FromMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "hi",
		Author:    &discordgo.User{ID: "u1", Username: "user", GlobalName: "User One"},
		Member:    &discordgo.Member{Nick: "Nicky", Roles: []string{"r1"}},
	}})
	assert.Equal(t, "Nicky", in.AuthorName)
	assert.Equal(t, []string{"r1"}, in.Roles)

	in = FromMessage(&discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "u1", Username: "user", GlobalName: "User One"},
	}})
	assert.Equal(t, "User One", in.AuthorName)
}
