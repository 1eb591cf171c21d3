package rpxp

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

const (
	MinLevel = 3
	MaxLevel = 20

	// ReferenceLevel is the level at which xp_per_word is granted unscaled.
	ReferenceLevel = 3

	DefaultXPPerWord = 0.01

	BasePCSlots       = 2
	VeteranLevel      = 10
	MaxFalloffPercent = 100
	MaxTagLength      = 32
	MaxNameLength     = 80
)

// levelMultipliers[i] scales xp for a character at level i+1.
// The dip after level 10 is intentional and must not be smoothed out.
var levelMultipliers = [...]float64{
	1.0,      // 1 -> 2
	2.0,      // 2 -> 3
	6.0,      // 3 -> 4
	12.66,    // 4 -> 5
	24.922,   // 5 -> 6
	29.9064,  // 6 -> 7
	36.4938,  // 7 -> 8
	46.3031,  // 8 -> 9
	52.7855,  // 9 -> 10
	69.148,   // 10 -> 11
	49.0941,  // 11 -> 12
	65.2891,  // 12 -> 13
	65.2891,  // 13 -> 14
	81.6114,  // 14 -> 15
	97.9337,  // 15 -> 16
	97.9337,  // 16 -> 17
	130.2558, // 17 -> 18
	130.2558, // 18 -> 19
	162.8197, // 19 -> 20
}

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidRole      = errors.New(`role must be "PC" or "NPC"`)
	ErrLevelOutOfRange  = fmt.Errorf("level must be between %d and %d", MinLevel, MaxLevel)
	ErrLevelRequired    = errors.New("PCs require a level")
	ErrLevelForbidden   = errors.New("NPCs should not have a level")
	ErrGuildNotSetUp    = errors.New("this server is not set up yet")
	ErrGuildExists      = errors.New("server already set up")
	ErrTupperNotFound   = errors.New("tupper not found")
	ErrDuplicateTag     = errors.New("tupper tag must be unique")
	ErrNoFreeSlots      = errors.New("no free PC slots")
	ErrParentNotFound   = errors.New("parent not found")
	ErrParentNotPC      = errors.New("parent is not a PC")
	ErrAlterIsParent    = errors.New("alter name cannot be the same as the parent's")
	ErrNoLevel          = errors.New("NPCs do not have levels")
	ErrAlterLevel       = errors.New("alter levels depend on the parent")
	ErrLevelCap         = fmt.Errorf("cannot go beyond level %d", MaxLevel)
	ErrLevelFloor       = fmt.Errorf("cannot go below level %d", MinLevel)
	ErrOnCooldown       = errors.New("collection is on cooldown")
	ErrNothingToCollect = errors.New("nothing to collect")
	ErrUserNotFound     = errors.New("user not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// userErrors are reported back to whoever issued the request; anything
// else is an infrastructure failure.
var userErrors = []error{
	ErrInvalidInput, ErrInvalidRole, ErrLevelOutOfRange, ErrLevelRequired, ErrLevelForbidden,
	ErrGuildNotSetUp, ErrGuildExists, ErrTupperNotFound, ErrDuplicateTag, ErrNoFreeSlots,
	ErrParentNotFound, ErrParentNotPC, ErrAlterIsParent, ErrNoLevel, ErrAlterLevel,
	ErrLevelCap, ErrLevelFloor, ErrOnCooldown, ErrNothingToCollect, ErrUserNotFound,
	ErrPermissionDenied,
}

func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	return slices.ContainsFunc(userErrors, func(target error) bool {
		return errors.Is(err, target)
	})
}

// Multiplier returns the table entry for level. Level 20 has no row of its
// own and reuses the last one.
func Multiplier(level int) float64 {
	idx := level - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(levelMultipliers) {
		idx = len(levelMultipliers) - 1
	}
	return levelMultipliers[idx]
}

// Accrual computes the xp earned by a line of words spoken at level.
func Accrual(words int, xpPerWord float64, level int, falloffPercent int) float64 {
	if words <= 0 || xpPerWord <= 0 {
		return 0
	}
	falloff := float64(100-falloffPercent*(level-ReferenceLevel)) / 100
	delta := float64(words) * xpPerWord * Multiplier(level) / 6 * falloff
	if delta < 0 {
		return 0
	}
	return delta
}

// RoundXP rounds a pool for collection. Halves go to the even neighbour.
func RoundXP(v float64) int64 {
	return int64(math.RoundToEven(v))
}

func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: got %d", ErrLevelOutOfRange, level)
	}
	return nil
}

// PCAllowance is the number of PCs an owner may hold given the PCs they
// already have.
func PCAllowance(pcs []Tupper, isStaff bool) int {
	allowance := BasePCSlots
	if slices.ContainsFunc(pcs, func(t Tupper) bool { return t.Role == RolePC && t.Level >= VeteranLevel }) {
		allowance++
	}
	if isStaff {
		allowance++
	}
	return allowance
}

func ValidateGuildSettings(g Guild) error {
	if g.CooldownSeconds < 0 {
		return fmt.Errorf("%w: cooldown must be >= 0", ErrInvalidInput)
	}
	if g.XPPerWord <= 0 || math.IsNaN(g.XPPerWord) || math.IsInf(g.XPPerWord, 0) {
		return fmt.Errorf("%w: xp per word must be a positive number", ErrInvalidInput)
	}
	if g.LevelFalloffPercent < 0 || g.LevelFalloffPercent > MaxFalloffPercent {
		return fmt.Errorf("%w: level falloff must be between 0 and %d", ErrInvalidInput, MaxFalloffPercent)
	}
	return nil
}
