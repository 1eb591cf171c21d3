// Package memory keeps guild, user and tupper rows in process memory.
// Each Update works on a private copy that replaces the live state only
// when the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

type userKey struct{ guild, user string }

type tupperKey struct{ guild, owner, name string }

type state struct {
	guilds  map[string]rpxp.Guild
	users   map[userKey]rpxp.User
	tuppers map[tupperKey]rpxp.Tupper
}

func (s *state) clone() *state {
	return &state{
		guilds:  maps.Clone(s.guilds),
		users:   maps.Clone(s.users),
		tuppers: maps.Clone(s.tuppers),
	}
}

type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: &state{
		guilds:  map[string]rpxp.Guild{},
		users:   map[userKey]rpxp.User{},
		tuppers: map[tupperKey]rpxp.Tupper{},
	}}
}

var _ rpxp.Store = (*Store)(nil)

func (s *Store) Update(ctx context.Context, fn func(rpxp.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(rpxp.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Writes made by a View callback land on a throwaway copy.
	return fn(&tx{st: s.state.clone()})
}

type tx struct {
	st *state
}

func (t *tx) Guild(_ context.Context, guildID string) (rpxp.Guild, bool, error) {
	g, ok := t.st.guilds[guildID]
	return g, ok, nil
}

func (t *tx) Guilds(context.Context) ([]rpxp.Guild, error) {
	out := slices.Collect(maps.Values(t.st.guilds))
	slices.SortFunc(out, func(a, b rpxp.Guild) int { return strings.Compare(a.GuildID, b.GuildID) })
	return out, nil
}

func (t *tx) SaveGuild(_ context.Context, g rpxp.Guild) error {
	t.st.guilds[g.GuildID] = g
	return nil
}

func (t *tx) User(_ context.Context, guildID, userID string) (rpxp.User, bool, error) {
	u, ok := t.st.users[userKey{guildID, userID}]
	return u, ok, nil
}

func (t *tx) Users(_ context.Context, guildID string) ([]rpxp.User, error) {
	var out []rpxp.User
	for k, u := range t.st.users {
		if k.guild == guildID {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b rpxp.User) int { return strings.Compare(a.UserID, b.UserID) })
	return out, nil
}

func (t *tx) SaveUser(_ context.Context, u rpxp.User) error {
	t.st.users[userKey{u.GuildID, u.UserID}] = u
	return nil
}

func (t *tx) ResetMonthly(_ context.Context, guildID string) (int64, error) {
	var n int64
	for k, u := range t.st.users {
		if k.guild != guildID {
			continue
		}
		u.MonthlyMessages = 0
		u.MonthlyRPXP = 0
		t.st.users[k] = u
		n++
	}
	return n, nil
}

func (t *tx) Tuppers(_ context.Context, guildID, ownerID string) ([]rpxp.Tupper, error) {
	var out []rpxp.Tupper
	for k, tp := range t.st.tuppers {
		if k.guild == guildID && k.owner == ownerID {
			out = append(out, tp)
		}
	}
	slices.SortFunc(out, func(a, b rpxp.Tupper) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (t *tx) InsertTupper(_ context.Context, tp rpxp.Tupper) error {
	k := tupperKey{tp.GuildID, tp.OwnerID, tp.Name}
	if _, ok := t.st.tuppers[k]; ok {
		return fmt.Errorf("tupper %q already exists", tp.Name)
	}
	for k2, other := range t.st.tuppers {
		if k2.guild == k.guild && k2.owner == k.owner && other.Tag == tp.Tag {
			return fmt.Errorf("tag %q already in use", tp.Tag)
		}
	}
	t.st.tuppers[k] = tp
	return nil
}

func (t *tx) UpdateTupper(_ context.Context, tp rpxp.Tupper) error {
	k := tupperKey{tp.GuildID, tp.OwnerID, tp.Name}
	if _, ok := t.st.tuppers[k]; !ok {
		return fmt.Errorf("tupper %q does not exist", tp.Name)
	}
	t.st.tuppers[k] = tp
	return nil
}

func (t *tx) DeleteTupper(_ context.Context, guildID, ownerID, name string) (int64, error) {
	var n int64
	for k, tp := range t.st.tuppers {
		if k.guild != guildID || k.owner != ownerID {
			continue
		}
		if k.name == name || (tp.Role == rpxp.RoleAlter && tp.Parent == name) {
			delete(t.st.tuppers, k)
			n++
		}
	}
	return n, nil
}
