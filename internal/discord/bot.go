// Package discord connects the accrual engine to a Discord gateway
// session.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/command"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/syncq"
)

// Session is the part of *discordgo.Session the bot talks to.
type Session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	HeartbeatLatency() time.Duration
}

var _ Session = (*discordgo.Session)(nil)

// Incoming is a guild message reduced to what the bot reads.
type Incoming struct {
	ID         string
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Bot        bool
	Roles      []string
	Content    string
}

func FromMessage(m *discordgo.MessageCreate) Incoming {
	in := Incoming{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		in.AuthorID = m.Author.ID
		in.AuthorName = m.Author.DisplayName()
		in.Bot = m.Author.Bot
	}
	if m.Member != nil {
		in.Roles = m.Member.Roles
		if m.Member.Nick != "" {
			in.AuthorName = m.Member.Nick
		}
	}
	return in
}

type Config struct {
	Prefix  string
	Timeout time.Duration
}

type Bot struct {
	svc     *rpxp.Service
	queue   *syncq.Queue
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

func New(svc *rpxp.Service, queue *syncq.Queue, cfg Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = command.DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Bot{svc: svc, queue: queue, prefix: cfg.Prefix, timeout: cfg.Timeout, log: logger}
}

// Handler returns the MessageCreate callback to register on a session.
// ctx bounds every request the callback starts.
func (b *Bot) Handler(ctx context.Context) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.Handle(ctx, s, FromMessage(m))
	}
}

// Handle routes one message: commands are answered, everything else is
// queued for accrual.
func (b *Bot) Handle(ctx context.Context, s Session, in Incoming) {
	if in.Bot || in.GuildID == "" || in.AuthorID == "" {
		return
	}
	req, ok, err := command.Parse(b.prefix, in.Content)
	if !ok {
		b.enqueueAccrual(in)
		return
	}
	b.deleteCommand(s, in)
	if err != nil {
		b.send(s, in.ChannelID, errorEmbed(in.AuthorName, err))
		return
	}
	if command.AdminOnly(req) && !b.isAdmin(s, in) {
		b.send(s, in.ChannelID, errorEmbed(in.AuthorName, rpxp.ErrPermissionDenied))
		return
	}

	switch req.(type) {
	case command.Help:
		b.send(s, in.ChannelID, helpEmbed(b.prefix, in.AuthorName))
		return
	case command.Ping:
		b.send(s, in.ChannelID, pingEmbed(s.HeartbeatLatency()))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	var result any
	err = b.queue.Do(ctx, req.Name(), func(ctx context.Context) error {
		var err error
		result, err = b.execute(ctx, in, req)
		return err
	})
	if err != nil {
		if !rpxp.IsUserError(err) {
			b.log.Error("command failed", "command", req.Name(), "guild_id", in.GuildID, "user_id", in.AuthorID, "err", err)
		}
		b.send(s, in.ChannelID, errorEmbed(in.AuthorName, err))
		return
	}
	b.send(s, in.ChannelID, b.render(s, in, req, result))
}

func (b *Bot) enqueueAccrual(in Incoming) {
	msg := rpxp.Message{GuildID: in.GuildID, AuthorID: in.AuthorID, Content: in.Content}
	b.queue.Enqueue("accrue", func(ctx context.Context) error {
		_, _, err := b.svc.ProcessMessage(ctx, msg)
		return err
	})
}

// execute runs req against the engine. It is called from the job queue.
func (b *Bot) execute(ctx context.Context, in Incoming, req command.Request) (any, error) {
	g, o := in.GuildID, in.AuthorID
	switch r := req.(type) {
	case command.Setup:
		return b.svc.Setup(ctx, g)
	case command.Settings:
		return b.svc.Settings(ctx, g)
	case command.SetStaffRole:
		return b.svc.SetStaffRole(ctx, g, r.RoleID)
	case command.SetLogChannel:
		return b.svc.SetLogChannel(ctx, g, r.ChannelID)
	case command.SetCooldown:
		return b.svc.SetCooldown(ctx, g, r.Seconds)
	case command.SetXPPerWord:
		return b.svc.SetXPPerWord(ctx, g, r.XP)
	case command.SetFalloff:
		return b.svc.SetLevelFalloff(ctx, g, r.Percent)
	case command.Register:
		return b.svc.Register(ctx, rpxp.RegisterInput{
			GuildID:     g,
			OwnerID:     o,
			MemberRoles: in.Roles,
			Tag:         r.Tag,
			Name:        r.Character,
			Role:        r.Role,
			Level:       r.Level,
		})
	case command.AlterEgo:
		return b.svc.AlterEgo(ctx, rpxp.AlterEgoInput{GuildID: g, OwnerID: o, Tag: r.Tag, Name: r.Character, Parent: r.Parent})
	case command.Retire:
		return b.svc.Retire(ctx, g, o, r.Character)
	case command.SetLevel:
		return b.svc.SetLevel(ctx, g, o, r.Character, r.Level)
	case command.LevelUp:
		return b.svc.LevelUp(ctx, g, o, r.Character)
	case command.LevelDown:
		return b.svc.LevelDown(ctx, g, o, r.Character)
	case command.Collect:
		return b.svc.Collect(ctx, g, o)
	case command.List:
		owner := r.UserID
		if owner == "" {
			owner = o
		}
		return b.svc.List(ctx, g, owner)
	case command.Summary:
		return b.svc.Summary(ctx, g, r.Scope)
	}
	return nil, fmt.Errorf("no handler for command %q", req.Name())
}

// render builds the reply for a successful request. Member lookups happen
// here, outside the job queue.
func (b *Bot) render(s Session, in Incoming, req command.Request, result any) *discordgo.MessageEmbed {
	switch r := result.(type) {
	case rpxp.Guild:
		switch req.(type) {
		case command.Setup:
			return embed("", "Server added to database")
		case command.SetStaffRole:
			return embed("Staff role saved.", fmt.Sprintf("Staff role set to <@&%s>", r.StaffRoleID))
		case command.SetLogChannel:
			return embed("Log channel saved.", fmt.Sprintf("Log channel set to <#%s>", r.LogChannelID))
		case command.SetCooldown:
			return embed("Cooldown saved.", fmt.Sprintf("RP XP collection cooldown set to %s.", FormatCooldown(r.CooldownSeconds)))
		case command.SetXPPerWord:
			return embed("Xp per word set.", fmt.Sprintf("Players at level 3 now gain **%g xp** per word.", r.XPPerWord))
		case command.SetFalloff:
			return embed("Level falloff set.", fmt.Sprintf("Rp xp becomes **%d%%** less effective for every level beyond third.", r.LevelFalloffPercent))
		}
		return settingsEmbed(r)
	case rpxp.RegisterResult:
		return registeredEmbed(b.prefix, r)
	case rpxp.Tupper:
		return embed("Alter registered.", fmt.Sprintf("%s was registered as an alter of %s.", r.Name, r.Parent))
	case rpxp.RetireResult:
		msg := fmt.Sprintf("**%s** was retired.", r.Name)
		if r.AltersRetired > 0 {
			msg += fmt.Sprintf(" %d of their alters went with them.", r.AltersRetired)
		}
		return embed("Tupper retired.", msg)
	case rpxp.LevelResult:
		switch req.(type) {
		case command.LevelUp:
			return embed(in.AuthorName+" levels up a tupper.", fmt.Sprintf("**%s** leveled up to level **%d**.", r.Name, r.Level))
		case command.LevelDown:
			return embed(in.AuthorName+" levels down a tupper.", fmt.Sprintf("**%s** lost a level and is now at level **%d**.", r.Name, r.Level))
		}
		return embed(in.AuthorName+" sets the level of a tupper.", fmt.Sprintf("`%s` was set to level %d.", r.Name, r.Level))
	case rpxp.CollectResult:
		return collectedEmbed(in.AuthorName, r)
	case rpxp.TupperList:
		owner := in.AuthorName
		if r.OwnerID != in.AuthorID {
			owner = b.displayName(s, in.GuildID, r.OwnerID)
		}
		return listEmbed(owner, in.AuthorName, r)
	case rpxp.Summary:
		top := ""
		if r.TopUserID != "" {
			top = b.displayName(s, in.GuildID, r.TopUserID)
		}
		return SummaryEmbed(guildName(s, in.GuildID), top, r)
	}
	return embed("", "Done.")
}

func (b *Bot) displayName(s Session, guildID, userID string) string {
	m, err := s.GuildMember(guildID, userID)
	if err != nil || m == nil || m.User == nil {
		return "<@" + userID + ">"
	}
	return m.DisplayName()
}

func guildName(s Session, guildID string) string {
	g, err := s.Guild(guildID)
	if err != nil || g == nil || g.Name == "" {
		return "this server"
	}
	return g.Name
}

func (b *Bot) isAdmin(s Session, in Incoming) bool {
	perms, err := s.UserChannelPermissions(in.AuthorID, in.ChannelID)
	if err != nil {
		b.log.Warn("permission lookup failed", "guild_id", in.GuildID, "user_id", in.AuthorID, "err", err)
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func (b *Bot) deleteCommand(s Session, in Incoming) {
	if in.ID == "" {
		return
	}
	if err := s.ChannelMessageDelete(in.ChannelID, in.ID); err != nil {
		b.log.Debug("command message not deleted", "channel_id", in.ChannelID, "err", err)
	}
}

func (b *Bot) send(s Session, channelID string, e *discordgo.MessageEmbed) {
	if _, err := s.ChannelMessageSendEmbed(channelID, e); err != nil {
		b.log.Warn("reply not sent", "channel_id", channelID, "err", err)
	}
}
