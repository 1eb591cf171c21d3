package discord

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

// Colour of every embed the bot sends.
const embedColor = 0x9B59B6

func embed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: title, Description: description, Color: embedColor}
}

func requestedBy(e *discordgo.MessageEmbed, name string) *discordgo.MessageEmbed {
	e.Footer = &discordgo.MessageEmbedFooter{Text: "Requested by " + name}
	return e
}

// FormatCooldown renders a cooldown in its largest whole unit.
func FormatCooldown(seconds int64) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return plural(seconds/60, "minute")
	case seconds < 86400:
		return plural(seconds/3600, "hour")
	default:
		return plural(seconds/86400, "day")
	}
}

func sentence(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	r, size := utf8.DecodeRuneInString(msg)
	msg = string(unicode.ToUpper(r)) + msg[size:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}

func orNone(id, mention string) string {
	if id == "" {
		return "(not set)"
	}
	return mention
}

func settingsEmbed(g rpxp.Guild) *discordgo.MessageEmbed {
	var b strings.Builder
	b.WriteString("Current server settings:\n")
	fmt.Fprintf(&b, "- **%s** is the staff role.\n", orNone(g.StaffRoleID, "<@&"+g.StaffRoleID+">"))
	fmt.Fprintf(&b, "- **%s** is the log channel.\n", orNone(g.LogChannelID, "<#"+g.LogChannelID+">"))
	fmt.Fprintf(&b, "- The collection cooldown lasts for **%s**.\n", FormatCooldown(g.CooldownSeconds))
	fmt.Fprintf(&b, "- Players at level 3 gain **%g xp** per word roleplayed.\n", g.XPPerWord)
	fmt.Fprintf(&b, "- Rp xp becomes **%d%%** less effective for every level beyond third.", g.LevelFalloffPercent)
	return embed("Server settings.", b.String())
}

func registeredEmbed(prefix string, res rpxp.RegisterResult) *discordgo.MessageEmbed {
	t := res.Tupper
	level := "N/A"
	if t.Role == rpxp.RolePC {
		level = fmt.Sprint(t.Level)
	}
	var b strings.Builder
	if res.Overwritten {
		fmt.Fprintf(&b, "**%s** was overwritten.\n", t.Name)
	}
	b.WriteString("You have successfully registered your Tupper. If any information is wrong please use the command again with the same name to overwrite the other inputs.\n")
	fmt.Fprintf(&b, "If the name is wrong use `%sretire [%s]` and try again.\n", prefix, t.Name)
	fmt.Fprintf(&b, "- Tag: `%s`\n- Name: `%s`\n- Role: `%s`\n- Level: `%s`", t.Tag, t.Name, t.Role, level)
	return embed("Tupper Registered.", b.String())
}

func collectedEmbed(author string, res rpxp.CollectResult) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(res.PCs)+2)
	for _, c := range res.PCs {
		lines = append(lines, fmt.Sprintf("- **%s** collects **%d** rp xp.", c.Name, c.RPXP))
	}
	if res.NPCBonus > 0 {
		lines = append(lines, fmt.Sprintf("- Your NPCs earned **%d** bonus rp xp to hand to any PC.", res.NPCBonus))
	}
	lines = append(lines, fmt.Sprintf("\nTotal: **%d** rp xp.", res.Total))
	return embed(author+" collects rp xp", strings.Join(lines, "\n"))
}

func listEmbed(owner, requester string, list rpxp.TupperList) *discordgo.MessageEmbed {
	title := owner + "'s tupper list."
	if list.Empty() {
		return requestedBy(embed(title, owner+" has no registered tuppers."), requester)
	}
	var b strings.Builder
	b.WriteString(owner + " has the following tuppers:\n")
	if len(list.PCs) > 0 {
		b.WriteString("\n__**PCs:**__\n")
		for _, t := range list.PCs {
			fmt.Fprintf(&b, "- %s %d | `%s`\n", t.Name, t.Level, t.Tag)
		}
	}
	if len(list.Alters) > 0 {
		b.WriteString("\n__**Alters:**__\n")
		for _, t := range list.Alters {
			fmt.Fprintf(&b, "- %s | `%s` | Parented to: %s\n", t.Name, t.Tag, t.Parent)
		}
	}
	if len(list.NPCs) > 0 {
		b.WriteString("\n__**NPCs:**__\n")
		for _, t := range list.NPCs {
			fmt.Fprintf(&b, "- %s | `%s`\n", t.Name, t.Tag)
		}
	}
	return requestedBy(embed(title, b.String()), requester)
}

// SummaryEmbed renders guild statistics. topName is the display name of
// the top contributor, or empty to fall back to a mention.
func SummaryEmbed(guildName, topName string, s rpxp.Summary) *discordgo.MessageEmbed {
	heading := "Monthly"
	if s.Scope == rpxp.ScopeTotal {
		heading = "Total"
	}
	desc := fmt.Sprintf(
		"Total Words: **%d**\nAverage Words per User: **%.2f**\nTotal XP Collected: **%d**\nAverage XP per User: **%.2f**\n",
		s.TotalWords, s.AverageWords, s.TotalXP, s.AverageXP,
	)
	e := embed(fmt.Sprintf("**%s Statistics for %s**", heading, guildName), desc)
	if s.TopUserID != "" {
		if topName == "" {
			topName = "<@" + s.TopUserID + ">"
		}
		e.Author = &discordgo.MessageEmbedAuthor{Name: fmt.Sprintf("Top User: %s with %d words", topName, s.TopWords)}
	}
	return e
}

func helpEmbed(prefix, requester string) *discordgo.MessageEmbed {
	entries := []struct{ usage, about string }{
		{"settings", "Shows the current settings of the bot on this server."},
		{"setup", "Makes the bot add the server to its database. Essential for all other functions!"},
		{"staff_role <role_id>", "Sets the staff role so the bot can recognise staff members."},
		{"log_channel <channel_id>", "Sets where the bot sends automatic log messages."},
		{"cooldown <seconds>", fmt.Sprintf("Sets the cooldown duration for the `%scollect` command.", prefix)},
		{"xp_per_word <amount>", fmt.Sprintf("Sets the amount of xp that players receive per word (Standard is %g).", rpxp.DefaultXPPerWord)},
		{"level_falloff <amount>", "Sets the percentage of xp deduction for every level after third."},
		{"register <tag> <[Character Name]> <role> <level>", "Allows you to register one of your tuppers. Role is either PC or NPC. When you make an NPC do not add the level at the end.\n- Entering the command again with a character name you already have overwrites that tupper."},
		{"alter_ego <tag> <[Character Name]> <[Parent Name]>", "Alters are tuppers which belong to a PC, such as a familiar or alternative appearance. When you roleplay with them, the rp xp is collected by the parent character."},
		{"retire <[Character Name]>", "Deletes the tupper from the database. This is irreversible."},
		{"setlevel <[Character Name]> <level>", "Sets the tupper's level to the specified amount."},
		{"levelup <[Character Name]>", "Increases the level of the tupper by one."},
		{"leveldown <[Character Name]>", "Decreases the level of the tupper by one."},
		{"collect", "Collects all the accumulated rp xp for all your tuppers."},
		{"list <target>", fmt.Sprintf("Shows you all the tuppers of the user with the target ID. Alternatively you can look at your own with `%slist self`.", prefix)},
		{"msummary", "Gives server statistics based on this month's data."},
		{"tsummary", "Gives server statistics based on all data."},
	}
	var b strings.Builder
	b.WriteString("These are all the commands and their function: \n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n\n**`%s%s`**: \n- %s", prefix, e.usage, e.about)
	}
	return requestedBy(embed("Rp xp Bot commands.", b.String()), requester)
}

// errorEmbed turns a failed request into a reply. Infrastructure failures
// get a generic message.
func errorEmbed(author string, err error) *discordgo.MessageEmbed {
	var cooldown *rpxp.CooldownError
	switch {
	case errors.As(err, &cooldown):
		return embed(author+" collects rp xp", fmt.Sprintf("Collection is on **cooldown**. You can collect rp xp again **<t:%d:R>**.", cooldown.ReadyAt.Unix()))
	case errors.Is(err, rpxp.ErrNothingToCollect):
		return embed(author+" collects rp xp", "None of your characters have **any** rp xp to collect. Please play some more and try again later.")
	case errors.Is(err, rpxp.ErrNoFreeSlots):
		return embed("Registration failed.", "You do not have any free PC slots.")
	case errors.Is(err, rpxp.ErrPermissionDenied):
		return embed("Permission denied.", "You need the Administrator permission to use this command.")
	case rpxp.IsUserError(err):
		return embed("Invalid input!", sentence(err))
	default:
		return embed("Something went wrong.", "The request could not be completed. Please try again later.")
	}
}

func pingEmbed(latency time.Duration) *discordgo.MessageEmbed {
	return embed("", fmt.Sprintf("Hello World! %d ms.", latency.Milliseconds()))
}
