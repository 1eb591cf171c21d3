package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	cl "github.com/erikbrgr/alluria-rpxp-bot/internal/cli"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptConfirm(label string) (bool, error) {
	for {
		fmt.Printf("%s? (y/n) [n]: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		printWarn("Answer y or n.")
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func renderMigrations(dialect string, applied []string) {
	if dialect == "" {
		dialect = "sqlite"
	}
	if len(applied) == 0 {
		printInfo("Schema is up to date (" + dialect + ").")
		return
	}
	for _, v := range applied {
		fmt.Printf("  applied %s\n", v)
	}
	printSuccess(fmt.Sprintf("%d migration(s) applied (%s).", len(applied), dialect))
}

func renderHealth(h cl.Health) {
	if !h.OK {
		printWarn("API answered but reports not ok.")
		return
	}
	printSuccess(fmt.Sprintf("API ok, %d job(s) queued.", h.QueueDepth))
}

func renderSettings(g rpxp.Guild) {
	accent.Printf("\n== GUILD %s ==\n", g.GuildID)
	fmt.Printf("%-16s %s\n", "staff role", orDash(g.StaffRoleID))
	fmt.Printf("%-16s %s\n", "log channel", orDash(g.LogChannelID))
	fmt.Printf("%-16s %ds\n", "cooldown", g.CooldownSeconds)
	fmt.Printf("%-16s %g\n", "xp per word", g.XPPerWord)
	fmt.Printf("%-16s %d%%\n", "level falloff", g.LevelFalloffPercent)
	fmt.Println()
}

func renderSummary(s rpxp.Summary) {
	title := "MONTHLY"
	if s.Scope == rpxp.ScopeTotal {
		title = "TOTAL"
	}
	accent.Printf("\n== %s STATISTICS %s ==\n", title, s.GuildID)
	if s.Users == 0 {
		printInfo("No users recorded yet.")
		return
	}
	fmt.Printf("%-22s %12d\n", "users", s.Users)
	fmt.Printf("%-22s %12d\n", "total words", s.TotalWords)
	fmt.Printf("%-22s %12.2f\n", "average words", s.AverageWords)
	fmt.Printf("%-22s %12d\n", "total xp collected", s.TotalXP)
	fmt.Printf("%-22s %12.2f\n", "average xp", s.AverageXP)
	if s.TopUserID != "" {
		fmt.Printf("%-22s %12s (%d words)\n", "top user", s.TopUserID, s.TopWords)
	}
	fmt.Println()
}

func renderTuppers(userID string, list rpxp.TupperList) {
	accent.Printf("\n== TUPPERS OF %s ==\n", userID)
	if list.Empty() {
		printInfo("No registered tuppers.")
		return
	}
	fmt.Printf("%-6s %-24s %-10s %5s %10s %s\n", "ROLE", "NAME", "TAG", "LEVEL", "ACCRUED", "PARENT")
	rows := make([]rpxp.Tupper, 0, len(list.PCs)+len(list.Alters)+len(list.NPCs))
	rows = append(rows, list.PCs...)
	rows = append(rows, list.Alters...)
	rows = append(rows, list.NPCs...)
	for _, t := range rows {
		level := "-"
		if t.Role == rpxp.RolePC {
			level = fmt.Sprint(t.Level)
		}
		fmt.Printf("%-6s %-24s %-10s %5s %10.2f %s\n",
			t.Role,
			truncate(t.Name, 24),
			truncate(t.Tag, 10),
			level,
			t.AccruedRPXP,
			orDash(t.Parent),
		)
	}
	fmt.Println()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
