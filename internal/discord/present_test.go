package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

func TestFormatCooldown(t *testing.T) {
	cases := map[int64]string{
		0:      "0 seconds",
		1:      "1 seconds",
		59:     "59 seconds",
		60:     "1 minute",
		150:    "2 minutes",
		3600:   "1 hour",
		86399:  "23 hours",
		86400:  "1 day",
		604800: "7 days",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatCooldown(in), in)
	}
}

func TestErrorEmbed(t *testing.T) {
	ready := time.Unix(1_800_000_000, 0)
	e := errorEmbed("Ann", &rpxp.CooldownError{ReadyAt: ready})
	assert.Equal(t, "Ann collects rp xp", e.Title)
	assert.Contains(t, e.Description, "<t:1800000000:R>")

	e = errorEmbed("Ann", rpxp.ErrNoFreeSlots)
	assert.Equal(t, "Registration failed.", e.Title)

	e = errorEmbed("Ann", errors.New("connection refused"))
	assert.Equal(t, "Something went wrong.", e.Title)
	assert.NotContains(t, e.Description, "connection refused")

	e = errorEmbed("Ann", rpxp.ErrGuildNotSetUp)
	assert.Equal(t, "This server is not set up yet.", e.Description)
}

func TestCollectedEmbed(t *testing.T) {
	e := collectedEmbed("Ann", rpxp.CollectResult{
		PCs:      []rpxp.Collection{{Name: "Bob", RPXP: 3}, {Name: "Cy", RPXP: 2}},
		PCTotal:  5,
		NPCBonus: 4,
		Total:    9,
	})
	assert.Contains(t, e.Description, "- **Bob** collects **3** rp xp.")
	assert.Contains(t, e.Description, "**4** bonus rp xp")
	assert.Contains(t, e.Description, "Total: **9** rp xp.")
	assert.Equal(t, embedColor, e.Color)
}

func TestSummaryEmbed(t *testing.T) {
	s := rpxp.Summary{Scope: rpxp.ScopeMonth, Users: 2, TotalWords: 30, AverageWords: 15, TotalXP: 3, AverageXP: 1.5, TopUserID: "42", TopWords: 20}
	e := SummaryEmbed("Alluria", "", s)
	assert.Equal(t, "**Monthly Statistics for Alluria**", e.Title)
	assert.Contains(t, e.Description, "Average Words per User: **15.00**")
	require.NotNil(t, e.Author)
	assert.Equal(t, "Top User: <@42> with 20 words", e.Author.Name)

	s.Scope = rpxp.ScopeTotal
	s.TopUserID = ""
	e = SummaryEmbed("Alluria", "", s)
	assert.Equal(t, "**Total Statistics for Alluria**", e.Title)
	assert.Nil(t, e.Author)
}

func TestNotifierChannelChoice(t *testing.T) {
	ctx := context.Background()
	s := newFakeSession()
	s.guild = &discordgo.Guild{ID: "g1", Name: "Alluria", SystemChannelID: "sys"}
	s.members["42"] = &discordgo.Member{User: &discordgo.User{ID: "42", Username: "top"}}
	n := NewNotifier(s)
	sum := rpxp.Summary{Scope: rpxp.ScopeMonth, TopUserID: "42", TopWords: 9}

	require.NoError(t, n.MonthClosed(ctx, rpxp.Guild{GuildID: "g1", LogChannelID: "log"}, sum))
	require.NoError(t, n.MonthClosed(ctx, rpxp.Guild{GuildID: "g1"}, sum))
	require.Len(t, s.sent, 2)
	assert.Equal(t, "log", s.sent[0].channelID)
	assert.Equal(t, "sys", s.sent[1].channelID)
	assert.Equal(t, "Top User: top with 9 words", s.sent[0].embed.Author.Name)

	s.guild = nil
	assert.ErrorIs(t, n.MonthClosed(ctx, rpxp.Guild{GuildID: "g1"}, sum), errNoChannel)

	s.sendErr = errors.New("missing access")
	assert.Error(t, n.MonthClosed(ctx, rpxp.Guild{GuildID: "g1", LogChannelID: "log"}, sum))
}
