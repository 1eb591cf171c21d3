package rpxp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/clock"
)

type Service struct {
	store Store
	tags  TagCache
	clock clock.Clock
	log   *slog.Logger
}

func NewService(store Store, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		store: store,
		tags:  noopTagCache{},
		clock: clk,
		log:   logger,
	}
}

// UseTagCache replaces the default no-op tag cache.
func (s *Service) UseTagCache(c TagCache) {
	if c == nil {
		c = noopTagCache{}
	}
	s.tags = c
}

func (s *Service) Setup(ctx context.Context, guildID string) (Guild, error) {
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return Guild{}, fmt.Errorf("%w: guild id is required", ErrInvalidInput)
	}
	g := Guild{GuildID: guildID, XPPerWord: DefaultXPPerWord}
	err := s.store.Update(ctx, func(tx Tx) error {
		if _, ok, err := tx.Guild(ctx, guildID); err != nil {
			return err
		} else if ok {
			return ErrGuildExists
		}
		return tx.SaveGuild(ctx, g)
	})
	if err != nil {
		return Guild{}, err
	}
	s.log.Info("guild set up", "guild_id", guildID)
	return g, nil
}

func (s *Service) Settings(ctx context.Context, guildID string) (Guild, error) {
	var out Guild
	err := s.store.View(ctx, func(tx Tx) error {
		g, err := requireGuild(ctx, tx, guildID)
		if err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

func (s *Service) SetStaffRole(ctx context.Context, guildID, roleID string) (Guild, error) {
	return s.updateGuild(ctx, guildID, func(g *Guild) { g.StaffRoleID = strings.TrimSpace(roleID) })
}

func (s *Service) SetLogChannel(ctx context.Context, guildID, channelID string) (Guild, error) {
	return s.updateGuild(ctx, guildID, func(g *Guild) { g.LogChannelID = strings.TrimSpace(channelID) })
}

func (s *Service) SetCooldown(ctx context.Context, guildID string, seconds int64) (Guild, error) {
	return s.updateGuild(ctx, guildID, func(g *Guild) { g.CooldownSeconds = seconds })
}

func (s *Service) SetXPPerWord(ctx context.Context, guildID string, xp float64) (Guild, error) {
	return s.updateGuild(ctx, guildID, func(g *Guild) { g.XPPerWord = xp })
}

func (s *Service) SetLevelFalloff(ctx context.Context, guildID string, percent int) (Guild, error) {
	return s.updateGuild(ctx, guildID, func(g *Guild) { g.LevelFalloffPercent = percent })
}

func (s *Service) updateGuild(ctx context.Context, guildID string, mutate func(*Guild)) (Guild, error) {
	var out Guild
	err := s.store.Update(ctx, func(tx Tx) error {
		g, err := requireGuild(ctx, tx, guildID)
		if err != nil {
			return err
		}
		mutate(&g)
		if err := ValidateGuildSettings(g); err != nil {
			return err
		}
		out = g
		return tx.SaveGuild(ctx, g)
	})
	return out, err
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	var out RegisterResult
	tag, name, err := normalizeTagName(in.Tag, in.Name)
	if err != nil {
		return out, err
	}
	switch in.Role {
	case RolePC:
		if in.Level == nil {
			return out, ErrLevelRequired
		}
		if err := ValidateLevel(*in.Level); err != nil {
			return out, err
		}
	case RoleNPC:
		if in.Level != nil {
			return out, ErrLevelForbidden
		}
	default:
		return out, fmt.Errorf("%w: got %q", ErrInvalidRole, in.Role)
	}

	err = s.store.Update(ctx, func(tx Tx) error {
		g, err := requireGuild(ctx, tx, in.GuildID)
		if err != nil {
			return err
		}
		tuppers, err := tx.Tuppers(ctx, in.GuildID, in.OwnerID)
		if err != nil {
			return err
		}
		if err := checkTagFree(tuppers, tag, name); err != nil {
			return err
		}
		// The allowance still sees the PC being overwritten, the count does not.
		if in.Role == RolePC {
			pcs := byRole(tuppers, RolePC)
			held := len(pcs)
			if _, ok := findByName(pcs, name); ok {
				held--
			}
			if held >= PCAllowance(pcs, isStaff(g, in.MemberRoles)) {
				return ErrNoFreeSlots
			}
		}
		t := Tupper{
			GuildID: in.GuildID,
			OwnerID: in.OwnerID,
			Tag:     tag,
			Name:    name,
			Role:    in.Role,
		}
		if in.Level != nil {
			t.Level = *in.Level
		}
		if _, ok := findByName(tuppers, name); ok {
			out.Overwritten = true
			if _, err := tx.DeleteTupper(ctx, in.GuildID, in.OwnerID, name); err != nil {
				return err
			}
		}
		if err := tx.InsertTupper(ctx, t); err != nil {
			return err
		}
		out.Tupper = t
		_, err = ensureUser(ctx, tx, in.GuildID, in.OwnerID)
		return err
	})
	if err != nil {
		return RegisterResult{}, err
	}
	s.invalidateTags(ctx, in.GuildID, in.OwnerID)
	s.log.Info("tupper registered", "guild_id", in.GuildID, "owner_id", in.OwnerID, "name", name, "role", in.Role, "overwritten", out.Overwritten)
	return out, nil
}

func (s *Service) AlterEgo(ctx context.Context, in AlterEgoInput) (Tupper, error) {
	var out Tupper
	tag, name, err := normalizeTagName(in.Tag, in.Name)
	if err != nil {
		return out, err
	}
	parentName := strings.TrimSpace(in.Parent)
	if parentName == "" {
		return out, fmt.Errorf("%w: parent name is required", ErrInvalidInput)
	}
	if parentName == name {
		return out, ErrAlterIsParent
	}

	err = s.store.Update(ctx, func(tx Tx) error {
		if _, err := requireGuild(ctx, tx, in.GuildID); err != nil {
			return err
		}
		tuppers, err := tx.Tuppers(ctx, in.GuildID, in.OwnerID)
		if err != nil {
			return err
		}
		if err := checkTagFree(tuppers, tag, name); err != nil {
			return err
		}
		parent, ok := findByName(tuppers, parentName)
		if !ok {
			return fmt.Errorf("%w: %s", ErrParentNotFound, parentName)
		}
		if parent.Role != RolePC {
			return fmt.Errorf("%w: %s", ErrParentNotPC, parentName)
		}
		if _, ok := findByName(tuppers, name); ok {
			if _, err := tx.DeleteTupper(ctx, in.GuildID, in.OwnerID, name); err != nil {
				return err
			}
		}
		out = Tupper{
			GuildID: in.GuildID,
			OwnerID: in.OwnerID,
			Tag:     tag,
			Name:    name,
			Role:    RoleAlter,
			Level:   parent.Level,
			Parent:  parent.Name,
		}
		if err := tx.InsertTupper(ctx, out); err != nil {
			return err
		}
		_, err = ensureUser(ctx, tx, in.GuildID, in.OwnerID)
		return err
	})
	if err != nil {
		return Tupper{}, err
	}
	s.invalidateTags(ctx, in.GuildID, in.OwnerID)
	s.log.Info("alter registered", "guild_id", in.GuildID, "owner_id", in.OwnerID, "name", name, "parent", parentName)
	return out, nil
}

func (s *Service) Retire(ctx context.Context, guildID, ownerID, name string) (RetireResult, error) {
	name = strings.TrimSpace(name)
	out := RetireResult{Name: name}
	err := s.store.Update(ctx, func(tx Tx) error {
		if _, err := requireGuild(ctx, tx, guildID); err != nil {
			return err
		}
		n, err := tx.DeleteTupper(ctx, guildID, ownerID, name)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrTupperNotFound, name)
		}
		out.AltersRetired = int(n - 1)
		return nil
	})
	if err != nil {
		return RetireResult{}, err
	}
	s.invalidateTags(ctx, guildID, ownerID)
	s.log.Info("tupper retired", "guild_id", guildID, "owner_id", ownerID, "name", name, "alters", out.AltersRetired)
	return out, nil
}

func (s *Service) SetLevel(ctx context.Context, guildID, ownerID, name string, level int) (LevelResult, error) {
	if err := ValidateLevel(level); err != nil {
		return LevelResult{}, err
	}
	return s.changeLevel(ctx, guildID, ownerID, name, func(int) (int, error) { return level, nil })
}

func (s *Service) LevelUp(ctx context.Context, guildID, ownerID, name string) (LevelResult, error) {
	return s.changeLevel(ctx, guildID, ownerID, name, func(cur int) (int, error) {
		if cur >= MaxLevel {
			return 0, fmt.Errorf("%w: %s", ErrLevelCap, name)
		}
		return cur + 1, nil
	})
}

func (s *Service) LevelDown(ctx context.Context, guildID, ownerID, name string) (LevelResult, error) {
	return s.changeLevel(ctx, guildID, ownerID, name, func(cur int) (int, error) {
		if cur <= MinLevel {
			return 0, fmt.Errorf("%w: %s", ErrLevelFloor, name)
		}
		return cur - 1, nil
	})
}

func (s *Service) changeLevel(ctx context.Context, guildID, ownerID, name string, next func(int) (int, error)) (LevelResult, error) {
	name = strings.TrimSpace(name)
	out := LevelResult{Name: name}
	err := s.store.Update(ctx, func(tx Tx) error {
		if _, err := requireGuild(ctx, tx, guildID); err != nil {
			return err
		}
		tuppers, err := tx.Tuppers(ctx, guildID, ownerID)
		if err != nil {
			return err
		}
		t, ok := findByName(tuppers, name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTupperNotFound, name)
		}
		switch t.Role {
		case RoleNPC:
			return ErrNoLevel
		case RoleAlter:
			return ErrAlterLevel
		}
		level, err := next(t.Level)
		if err != nil {
			return err
		}
		t.Level = level
		if err := tx.UpdateTupper(ctx, t); err != nil {
			return err
		}
		for _, alter := range altersOf(tuppers, name) {
			alter.Level = level
			if err := tx.UpdateTupper(ctx, alter); err != nil {
				return err
			}
			out.AltersUpdated++
		}
		out.Level = level
		return nil
	})
	if err != nil {
		return LevelResult{}, err
	}
	s.log.Info("tupper level changed", "guild_id", guildID, "owner_id", ownerID, "name", name, "level", out.Level)
	return out, nil
}

func (s *Service) List(ctx context.Context, guildID, ownerID string) (TupperList, error) {
	out := TupperList{OwnerID: ownerID, PCs: []Tupper{}, Alters: []Tupper{}, NPCs: []Tupper{}}
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := requireGuild(ctx, tx, guildID); err != nil {
			return err
		}
		tuppers, err := tx.Tuppers(ctx, guildID, ownerID)
		if err != nil {
			return err
		}
		for _, t := range tuppers {
			switch t.Role {
			case RolePC:
				out.PCs = append(out.PCs, t)
			case RoleAlter:
				out.Alters = append(out.Alters, t)
			case RoleNPC:
				out.NPCs = append(out.NPCs, t)
			}
		}
		return nil
	})
	return out, err
}

// ProcessMessage attributes a chat line to one of the author's characters
// and credits the xp it earns. ok is false when the line carries no known
// tag or the guild is not set up.
func (s *Service) ProcessMessage(ctx context.Context, msg Message) (AccrualResult, bool, error) {
	var out AccrualResult
	if strings.TrimSpace(msg.Content) == "" {
		return out, false, nil
	}
	cached, hit, err := s.tags.Tags(ctx, msg.GuildID, msg.AuthorID)
	if err != nil {
		s.log.Warn("tag cache read failed", "guild_id", msg.GuildID, "err", err)
		hit = false
	}
	if hit {
		if _, ok := ResolveTag(msg.Content, cached); !ok {
			return out, false, nil
		}
	}

	var matched bool
	var loaded []string
	err = s.store.Update(ctx, func(tx Tx) error {
		g, ok, err := tx.Guild(ctx, msg.GuildID)
		if err != nil || !ok {
			return err
		}
		tuppers, err := tx.Tuppers(ctx, msg.GuildID, msg.AuthorID)
		if err != nil {
			return err
		}
		loaded = tagsOf(tuppers)
		m, ok := ResolveTag(msg.Content, loaded)
		if !ok {
			return nil
		}
		speaker, ok := findByTag(tuppers, m.Tag)
		if !ok {
			return nil
		}
		res, err := s.accrue(ctx, tx, g, tuppers, speaker, m.Words)
		if err != nil {
			return err
		}
		out = res
		matched = true
		return nil
	})
	if err != nil {
		return AccrualResult{}, false, err
	}
	if !hit && loaded != nil {
		if err := s.tags.StoreTags(ctx, msg.GuildID, msg.AuthorID, loaded); err != nil {
			s.log.Warn("tag cache write failed", "guild_id", msg.GuildID, "err", err)
		}
	}
	if matched {
		s.log.Debug("rpxp accrued", "guild_id", msg.GuildID, "owner_id", msg.AuthorID, "speaker", out.Speaker, "beneficiary", out.Beneficiary, "words", out.Words, "delta", out.Delta)
	}
	return out, matched, nil
}

func (s *Service) accrue(ctx context.Context, tx Tx, g Guild, tuppers []Tupper, speaker Tupper, words int) (AccrualResult, error) {
	now := s.clock.Now().UTC()
	beneficiary := speaker
	level := speaker.Level
	switch speaker.Role {
	case RoleNPC:
		level = ReferenceLevel
	case RoleAlter:
		parent, ok := findByName(tuppers, speaker.Parent)
		if !ok {
			return AccrualResult{}, fmt.Errorf("alter %q references missing parent %q", speaker.Name, speaker.Parent)
		}
		beneficiary = parent
		level = parent.Level
	}

	delta := Accrual(words, g.XPPerWord, level, g.LevelFalloffPercent)
	beneficiary.AccruedRPXP += delta
	beneficiary.LastMessageAt = &now
	if err := tx.UpdateTupper(ctx, beneficiary); err != nil {
		return AccrualResult{}, err
	}
	if speaker.Role == RoleAlter {
		for _, alter := range altersOf(tuppers, beneficiary.Name) {
			alter.LastMessageAt = &now
			if err := tx.UpdateTupper(ctx, alter); err != nil {
				return AccrualResult{}, err
			}
		}
	}

	u, err := ensureUser(ctx, tx, g.GuildID, speaker.OwnerID)
	if err != nil {
		return AccrualResult{}, err
	}
	u.MonthlyMessages += int64(words)
	u.TotalMessages += int64(words)
	if err := tx.SaveUser(ctx, u); err != nil {
		return AccrualResult{}, err
	}
	return AccrualResult{
		Speaker:     speaker.Name,
		Beneficiary: beneficiary.Name,
		Words:       words,
		Delta:       delta,
		Accrued:     beneficiary.AccruedRPXP,
	}, nil
}

func (s *Service) invalidateTags(ctx context.Context, guildID, ownerID string) {
	if err := s.tags.Invalidate(ctx, guildID, ownerID); err != nil {
		s.log.Warn("tag cache invalidate failed", "guild_id", guildID, "owner_id", ownerID, "err", err)
	}
}

func requireGuild(ctx context.Context, tx Tx, guildID string) (Guild, error) {
	g, ok, err := tx.Guild(ctx, guildID)
	if err != nil {
		return Guild{}, err
	}
	if !ok {
		return Guild{}, ErrGuildNotSetUp
	}
	return g, nil
}

func ensureUser(ctx context.Context, tx Tx, guildID, userID string) (User, error) {
	u, ok, err := tx.User(ctx, guildID, userID)
	if err != nil {
		return User{}, err
	}
	if ok {
		return u, nil
	}
	u = User{GuildID: guildID, UserID: userID}
	if err := tx.SaveUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func normalizeTagName(tag, name string) (string, string, error) {
	tag = strings.TrimSpace(tag)
	name = strings.TrimSpace(name)
	switch {
	case tag == "":
		return "", "", fmt.Errorf("%w: tag is required", ErrInvalidInput)
	case len(tag) > MaxTagLength:
		return "", "", fmt.Errorf("%w: tag is longer than %d characters", ErrInvalidInput, MaxTagLength)
	case strings.ContainsFunc(tag, isSpace):
		return "", "", fmt.Errorf("%w: tag cannot contain spaces", ErrInvalidInput)
	case name == "":
		return "", "", fmt.Errorf("%w: missing character name", ErrInvalidInput)
	case len(name) > MaxNameLength:
		return "", "", fmt.Errorf("%w: name is longer than %d characters", ErrInvalidInput, MaxNameLength)
	}
	return tag, name, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// checkTagFree ignores name and its Alters, which an overwrite removes.
func checkTagFree(tuppers []Tupper, tag, name string) error {
	for _, t := range tuppers {
		if t.Name == name || (t.Role == RoleAlter && t.Parent == name) {
			continue
		}
		if t.Tag == tag {
			return fmt.Errorf("%w: %s is used by %s", ErrDuplicateTag, tag, t.Name)
		}
	}
	return nil
}

func isStaff(g Guild, memberRoles []string) bool {
	return g.StaffRoleID != "" && slices.Contains(memberRoles, g.StaffRoleID)
}

func byRole(tuppers []Tupper, role Role) []Tupper {
	var out []Tupper
	for _, t := range tuppers {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

func findByName(tuppers []Tupper, name string) (Tupper, bool) {
	i := slices.IndexFunc(tuppers, func(t Tupper) bool { return t.Name == name })
	if i < 0 {
		return Tupper{}, false
	}
	return tuppers[i], true
}

func findByTag(tuppers []Tupper, tag string) (Tupper, bool) {
	i := slices.IndexFunc(tuppers, func(t Tupper) bool { return t.Tag == tag })
	if i < 0 {
		return Tupper{}, false
	}
	return tuppers[i], true
}

func altersOf(tuppers []Tupper, parent string) []Tupper {
	var out []Tupper
	for _, t := range tuppers {
		if t.Role == RoleAlter && t.Parent == parent {
			out = append(out, t)
		}
	}
	return out
}
