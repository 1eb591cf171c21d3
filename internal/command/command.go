// Package command turns prefixed chat lines into typed requests.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

const DefaultPrefix = "$"

// Request is one parsed command. The concrete types below are the only
// implementations.
type Request interface {
	Name() string
}

type (
	Setup         struct{}
	Settings      struct{}
	SetStaffRole  struct{ RoleID string }
	SetLogChannel struct{ ChannelID string }
	SetCooldown   struct{ Seconds int64 }
	SetXPPerWord  struct{ XP float64 }
	SetFalloff    struct{ Percent int }
	Collect       struct{}
	Help          struct{}
	Ping          struct{}
)

type Register struct {
	Tag       string
	Character string
	Role      rpxp.Role
	Level     *int
}

type AlterEgo struct {
	Tag       string
	Character string
	Parent    string
}

type Retire struct{ Character string }

type SetLevel struct {
	Character string
	Level     int
}

type LevelUp struct{ Character string }

type LevelDown struct{ Character string }

// List targets the caller when UserID is empty.
type List struct{ UserID string }

type Summary struct{ Scope rpxp.SummaryScope }

func (Setup) Name() string         { return "setup" }
func (Settings) Name() string      { return "settings" }
func (SetStaffRole) Name() string  { return "staff_role" }
func (SetLogChannel) Name() string { return "log_channel" }
func (SetCooldown) Name() string   { return "cooldown" }
func (SetXPPerWord) Name() string  { return "xp_per_word" }
func (SetFalloff) Name() string    { return "level_falloff" }
func (Register) Name() string      { return "register" }
func (AlterEgo) Name() string      { return "alter_ego" }
func (Retire) Name() string        { return "retire" }
func (SetLevel) Name() string      { return "setlevel" }
func (LevelUp) Name() string       { return "levelup" }
func (LevelDown) Name() string     { return "leveldown" }
func (Collect) Name() string       { return "collect" }
func (List) Name() string          { return "list" }
func (Help) Name() string          { return "helpme" }
func (Ping) Name() string          { return "boop" }

func (s Summary) Name() string {
	if s.Scope == rpxp.ScopeTotal {
		return "tsummary"
	}
	return "msummary"
}

// AdminOnly reports whether r changes or reveals guild configuration.
func AdminOnly(r Request) bool {
	switch r.(type) {
	case Setup, Settings, SetStaffRole, SetLogChannel, SetCooldown, SetXPPerWord, SetFalloff:
		return true
	}
	return false
}

// ParseError describes malformed command arguments. It matches
// rpxp.ErrInvalidInput.
type ParseError struct {
	Command string
	Msg     string
}

func (e *ParseError) Error() string {
	return e.Command + ": " + e.Msg
}

func (e *ParseError) Unwrap() error {
	return rpxp.ErrInvalidInput
}

func fail(cmd, format string, args ...any) error {
	return &ParseError{Command: cmd, Msg: fmt.Sprintf(format, args...)}
}

var errNoBracket = errors.New("no bracket")

type parser func(cmd, args string) (Request, error)

var parsers = map[string]parser{
	"setup":         noArgs(Setup{}),
	"settings":      noArgs(Settings{}),
	"collect":       noArgs(Collect{}),
	"helpme":        noArgs(Help{}),
	"boop":          noArgs(Ping{}),
	"msummary":      noArgs(Summary{Scope: rpxp.ScopeMonth}),
	"tsummary":      noArgs(Summary{Scope: rpxp.ScopeTotal}),
	"staff_role":    parseStaffRole,
	"log_channel":   parseLogChannel,
	"cooldown":      parseCooldown,
	"xp_per_word":   parseXPPerWord,
	"level_falloff": parseFalloff,
	"register":      parseRegister,
	"alter_ego":     parseAlterEgo,
	"retire":        parseRetire,
	"setlevel":      parseSetLevel,
	"levelup":       parseLevelUp,
	"leveldown":     parseLevelDown,
	"list":          parseList,
}

// Parse reads content as a command. ok is false when content does not
// start with prefix followed by a known command word; such lines are
// ordinary chat.
func Parse(prefix, content string) (req Request, ok bool, err error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	content = strings.TrimSpace(content)
	rest, found := strings.CutPrefix(content, prefix)
	if !found {
		return nil, false, nil
	}
	word, args, _ := strings.Cut(rest, " ")
	p, known := parsers[strings.ToLower(word)]
	if !known {
		return nil, false, nil
	}
	req, err = p(strings.ToLower(word), strings.TrimSpace(args))
	return req, true, err
}

func noArgs(r Request) parser {
	return func(string, string) (Request, error) { return r, nil }
}

func parseStaffRole(cmd, args string) (Request, error) {
	id, err := snowflake(cmd, args, "<@&", ">")
	if err != nil {
		return nil, err
	}
	return SetStaffRole{RoleID: id}, nil
}

func parseLogChannel(cmd, args string) (Request, error) {
	id, err := snowflake(cmd, args, "<#", ">")
	if err != nil {
		return nil, err
	}
	return SetLogChannel{ChannelID: id}, nil
}

func parseCooldown(cmd, args string) (Request, error) {
	n, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return nil, fail(cmd, "cooldown must be a whole number of seconds")
	}
	if n < 0 {
		return nil, fail(cmd, "cooldown must be >= 0")
	}
	return SetCooldown{Seconds: n}, nil
}

func parseXPPerWord(cmd, args string) (Request, error) {
	v, err := strconv.ParseFloat(args, 64)
	if err != nil {
		return nil, fail(cmd, "xp per word must be a number")
	}
	if v <= 0 {
		return nil, fail(cmd, "xp per word must be positive")
	}
	return SetXPPerWord{XP: v}, nil
}

func parseFalloff(cmd, args string) (Request, error) {
	n, err := strconv.Atoi(args)
	if err != nil {
		return nil, fail(cmd, "level falloff must be a whole number")
	}
	if n < 0 || n > rpxp.MaxFalloffPercent {
		return nil, fail(cmd, "level falloff must be between 0 and %d", rpxp.MaxFalloffPercent)
	}
	return SetFalloff{Percent: n}, nil
}

func parseRegister(cmd, args string) (Request, error) {
	tag, rest, found := strings.Cut(args, " ")
	if tag == "" || !found {
		return nil, fail(cmd, "missing character name")
	}
	name, rest, err := characterName(cmd, rest)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, fail(cmd, "missing role")
	}
	if len(fields) > 2 {
		return nil, fail(cmd, "unexpected %q after the level", strings.Join(fields[2:], " "))
	}
	role, err := rpxp.ParseRole(fields[0])
	if err != nil || role == rpxp.RoleAlter {
		return nil, fail(cmd, `role must be "PC" or "NPC" (case-insensitive)`)
	}
	req := Register{Tag: tag, Character: name, Role: role}
	if len(fields) == 2 {
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fail(cmd, "level must be a whole number")
		}
		req.Level = &level
	}
	return req, nil
}

func parseAlterEgo(cmd, args string) (Request, error) {
	tag, rest, found := strings.Cut(args, " ")
	if tag == "" || !found {
		return nil, fail(cmd, "missing character name")
	}
	name, rest, err := characterName(cmd, rest)
	if err != nil {
		return nil, err
	}
	parent, rest, err := bracketed(cmd, rest)
	if errors.Is(err, errNoBracket) && strings.TrimSpace(rest) == "" {
		return nil, fail(cmd, "missing parent name")
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rest) != "" {
		return nil, fail(cmd, "unexpected %q after the parent name", rest)
	}
	return AlterEgo{Tag: tag, Character: name, Parent: parent}, nil
}

func parseRetire(cmd, args string) (Request, error) {
	name, err := onlyBracketed(cmd, args)
	if err != nil {
		return nil, err
	}
	return Retire{Character: name}, nil
}

func parseLevelUp(cmd, args string) (Request, error) {
	name, err := onlyBracketed(cmd, args)
	if err != nil {
		return nil, err
	}
	return LevelUp{Character: name}, nil
}

func parseLevelDown(cmd, args string) (Request, error) {
	name, err := onlyBracketed(cmd, args)
	if err != nil {
		return nil, err
	}
	return LevelDown{Character: name}, nil
}

func parseSetLevel(cmd, args string) (Request, error) {
	name, rest, err := characterName(cmd, args)
	if err != nil {
		return nil, err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, fail(cmd, "missing level")
	}
	level, err := strconv.Atoi(rest)
	if err != nil {
		return nil, fail(cmd, "level must be a whole number")
	}
	return SetLevel{Character: name, Level: level}, nil
}

func parseList(cmd, args string) (Request, error) {
	if args == "" || strings.EqualFold(args, "self") {
		return List{}, nil
	}
	id, err := snowflake(cmd, args, "<@", ">")
	if err != nil {
		return nil, fail(cmd, "argument must either be `self` or a user id")
	}
	return List{UserID: id}, nil
}

// bracketed reads "[Name]" from the start of s and returns the name and
// what follows it.
func bracketed(cmd, s string) (string, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		if s == "" {
			return "", s, errNoBracket
		}
		return "", s, fail(cmd, "character name must be in square brackets")
	}
	end := strings.IndexByte(s[1:], ']')
	if end < 0 {
		return "", s, fail(cmd, "closing bracket for character name is missing")
	}
	name := strings.TrimSpace(s[1 : end+1])
	if name == "" {
		return "", s, fail(cmd, "character name is empty")
	}
	return name, s[end+2:], nil
}

func characterName(cmd, s string) (string, string, error) {
	name, rest, err := bracketed(cmd, s)
	if errors.Is(err, errNoBracket) {
		return "", rest, fail(cmd, "missing character name")
	}
	return name, rest, err
}

func onlyBracketed(cmd, s string) (string, error) {
	name, rest, err := characterName(cmd, s)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rest) != "" {
		return "", fail(cmd, "unexpected %q after the character name", strings.TrimSpace(rest))
	}
	return name, nil
}

// snowflake accepts either a bare numeric id or a mention wrapped in lead
// and trail.
func snowflake(cmd, s, lead, trail string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fail(cmd, "missing id")
	}
	if strings.HasPrefix(s, lead) && strings.HasSuffix(s, trail) {
		s = s[len(lead) : len(s)-len(trail)]
	}
	digits := strings.TrimPrefix(s, "!")
	if digits == "" || strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return "", fail(cmd, "%q is not a valid id", s)
	}
	return digits, nil
}
