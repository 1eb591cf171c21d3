package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

var errNoChannel = errors.New("guild has no log or system channel")

// Notifier posts the closing monthly summary of a guild. The guild's log
// channel is used when set, otherwise its system channel.
type Notifier struct {
	session Session
}

func NewNotifier(s Session) *Notifier {
	return &Notifier{session: s}
}

func (n *Notifier) MonthClosed(_ context.Context, g rpxp.Guild, s rpxp.Summary) error {
	channelID := g.LogChannelID
	name := "this server"
	if dg, err := n.session.Guild(g.GuildID); err == nil && dg != nil {
		name = dg.Name
		if channelID == "" {
			channelID = dg.SystemChannelID
		}
	}
	if channelID == "" {
		return fmt.Errorf("%w: %s", errNoChannel, g.GuildID)
	}
	top := ""
	if s.TopUserID != "" {
		if m, err := n.session.GuildMember(g.GuildID, s.TopUserID); err == nil && m != nil && m.User != nil {
			top = m.DisplayName()
		}
	}
	if _, err := n.session.ChannelMessageSendEmbed(channelID, SummaryEmbed(name, top, s)); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	return nil
}
