package rpxp

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RolePC    Role = "PC"
	RoleNPC   Role = "NPC"
	RoleAlter Role = "ALTER"
)

func ParseRole(raw string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PC":
		return RolePC, nil
	case "NPC":
		return RoleNPC, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidRole, raw)
	}
}

func (r Role) Valid() bool {
	return r == RolePC || r == RoleNPC || r == RoleAlter
}

type Guild struct {
	GuildID             string  `json:"guild_id"`
	StaffRoleID         string  `json:"staff_role_id,omitempty"`
	LogChannelID        string  `json:"log_channel_id,omitempty"`
	CooldownSeconds     int64   `json:"cooldown_seconds"`
	XPPerWord           float64 `json:"xp_per_word"`
	LevelFalloffPercent int     `json:"level_falloff_percent"`
}

func (g Guild) Cooldown() time.Duration {
	return time.Duration(g.CooldownSeconds) * time.Second
}

// User is the per-guild aggregate of a member. The *Messages counters hold
// words written, not message counts.
type User struct {
	GuildID         string `json:"guild_id"`
	UserID          string `json:"user_id"`
	MonthlyMessages int64  `json:"monthly_messages"`
	MonthlyRPXP     int64  `json:"monthly_rpxp"`
	TotalMessages   int64  `json:"total_messages"`
	TotalRPXP       int64  `json:"total_rpxp"`
}

type Tupper struct {
	GuildID          string     `json:"guild_id"`
	OwnerID          string     `json:"owner_id"`
	Tag              string     `json:"tag"`
	Name             string     `json:"name"`
	Role             Role       `json:"role"`
	Level            int        `json:"level,omitempty"`
	AccruedRPXP      float64    `json:"accrued_rpxp"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	LastCollectionAt *time.Time `json:"last_collection_at,omitempty"`
	Parent           string     `json:"parent,omitempty"`
}

type Message struct {
	GuildID  string
	AuthorID string
	Content  string
}

type AccrualResult struct {
	Speaker     string  `json:"speaker"`
	Beneficiary string  `json:"beneficiary"`
	Words       int     `json:"words"`
	Delta       float64 `json:"delta"`
	Accrued     float64 `json:"accrued"`
}

type RegisterInput struct {
	GuildID     string
	OwnerID     string
	MemberRoles []string
	Tag         string
	Name        string
	Role        Role
	Level       *int
}

type RegisterResult struct {
	Tupper      Tupper `json:"tupper"`
	Overwritten bool   `json:"overwritten"`
}

type AlterEgoInput struct {
	GuildID string
	OwnerID string
	Tag     string
	Name    string
	Parent  string
}

type LevelResult struct {
	Name          string `json:"name"`
	Level         int    `json:"level"`
	AltersUpdated int    `json:"alters_updated"`
}

type RetireResult struct {
	Name          string `json:"name"`
	AltersRetired int    `json:"alters_retired"`
}

type Collection struct {
	Name string `json:"name"`
	RPXP int64  `json:"rpxp"`
}

type CollectResult struct {
	PCs      []Collection `json:"pcs"`
	PCTotal  int64        `json:"pc_total"`
	NPCBonus int64        `json:"npc_bonus"`
	Total    int64        `json:"total"`
	User     User         `json:"user"`
}

// CooldownError reports when the next collection becomes possible.
type CooldownError struct {
	ReadyAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: ready at %s", ErrOnCooldown, e.ReadyAt.UTC().Format(time.RFC3339))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrOnCooldown
}

type TupperList struct {
	OwnerID string   `json:"owner_id"`
	PCs     []Tupper `json:"pcs"`
	Alters  []Tupper `json:"alters"`
	NPCs    []Tupper `json:"npcs"`
}

func (l TupperList) Empty() bool {
	return len(l.PCs) == 0 && len(l.Alters) == 0 && len(l.NPCs) == 0
}

type SummaryScope string

const (
	ScopeMonth SummaryScope = "month"
	ScopeTotal SummaryScope = "total"
)

type Summary struct {
	GuildID      string       `json:"guild_id"`
	Scope        SummaryScope `json:"scope"`
	Users        int          `json:"users"`
	TotalWords   int64        `json:"total_words"`
	AverageWords float64      `json:"average_words"`
	TotalXP      int64        `json:"total_xp"`
	AverageXP    float64      `json:"average_xp"`
	TopUserID    string       `json:"top_user_id,omitempty"`
	TopWords     int64        `json:"top_words"`
}

type RolloverResult struct {
	Summary    Summary `json:"summary"`
	UsersReset int64   `json:"users_reset"`
}
