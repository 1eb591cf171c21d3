// Package storetest holds the behaviour every rpxp.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

// Suite runs against a fresh, empty store per test. Backends embed it and
// set NewStore.
type Suite struct {
	suite.Suite
	NewStore func() rpxp.Store

	ctx   context.Context
	store rpxp.Store
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

var errAbort = errors.New("abort")

func ts(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

func (s *Suite) update(fn func(rpxp.Tx) error) {
	s.Require().NoError(s.store.Update(s.ctx, fn))
}

func (s *Suite) TestGuildRoundTrip() {
	g := rpxp.Guild{GuildID: "g1", StaffRoleID: "r1", LogChannelID: "c1", CooldownSeconds: 3600, XPPerWord: 0.02, LevelFalloffPercent: 5}
	s.update(func(tx rpxp.Tx) error { return tx.SaveGuild(s.ctx, g) })

	s.Require().NoError(s.store.View(s.ctx, func(tx rpxp.Tx) error {
		got, ok, err := tx.Guild(s.ctx, "g1")
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(g, got)

		_, ok, err = tx.Guild(s.ctx, "missing")
		s.Require().NoError(err)
		s.False(ok)
		return nil
	}))

	g.CooldownSeconds = 60
	s.update(func(tx rpxp.Tx) error {
		if err := tx.SaveGuild(s.ctx, g); err != nil {
			return err
		}
		return tx.SaveGuild(s.ctx, rpxp.Guild{GuildID: "g0", XPPerWord: rpxp.DefaultXPPerWord})
	})
	s.Require().NoError(s.store.View(s.ctx, func(tx rpxp.Tx) error {
		all, err := tx.Guilds(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal("g0", all[0].GuildID)
		s.Equal(int64(60), all[1].CooldownSeconds)
		return nil
	}))
}

func (s *Suite) TestUsersAndMonthlyReset() {
	s.update(func(tx rpxp.Tx) error {
		for _, u := range []rpxp.User{
			{GuildID: "g1", UserID: "u2", MonthlyMessages: 10, MonthlyRPXP: 2, TotalMessages: 100, TotalRPXP: 20},
			{GuildID: "g1", UserID: "u1", MonthlyMessages: 5, MonthlyRPXP: 1, TotalMessages: 50, TotalRPXP: 10},
			{GuildID: "g2", UserID: "u1", MonthlyMessages: 7, MonthlyRPXP: 3, TotalMessages: 70, TotalRPXP: 30},
		} {
			if err := tx.SaveUser(s.ctx, u); err != nil {
				return err
			}
		}
		return nil
	})

	var reset int64
	s.update(func(tx rpxp.Tx) error {
		var err error
		reset, err = tx.ResetMonthly(s.ctx, "g1")
		return err
	})
	s.Equal(int64(2), reset)

	s.Require().NoError(s.store.View(s.ctx, func(tx rpxp.Tx) error {
		users, err := tx.Users(s.ctx, "g1")
		s.Require().NoError(err)
		s.Require().Len(users, 2)
		s.Equal("u1", users[0].UserID)
		for _, u := range users {
			s.Zero(u.MonthlyMessages)
			s.Zero(u.MonthlyRPXP)
			s.NotZero(u.TotalMessages)
			s.NotZero(u.TotalRPXP)
		}
		other, ok, err := tx.User(s.ctx, "g2", "u1")
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(int64(7), other.MonthlyMessages)
		return nil
	}))
}

func (s *Suite) TestTupperColumns() {
	bob := rpxp.Tupper{GuildID: "g1", OwnerID: "o1", Tag: "B.", Name: "Bob", Role: rpxp.RolePC, Level: 5, AccruedRPXP: 1.25, LastMessageAt: ts(1700000000), LastCollectionAt: ts(1690000000)}
	npc := rpxp.Tupper{GuildID: "g1", OwnerID: "o1", Tag: "N:", Name: "Barkeep", Role: rpxp.RoleNPC}
	alt := rpxp.Tupper{GuildID: "g1", OwnerID: "o1", Tag: "BB", Name: "Bobby", Role: rpxp.RoleAlter, Level: 5, Parent: "Bob"}
	s.update(func(tx rpxp.Tx) error {
		for _, tp := range []rpxp.Tupper{bob, npc, alt} {
			if err := tx.InsertTupper(s.ctx, tp); err != nil {
				return err
			}
		}
		return nil
	})

	s.Require().NoError(s.store.View(s.ctx, func(tx rpxp.Tx) error {
		got, err := tx.Tuppers(s.ctx, "g1", "o1")
		s.Require().NoError(err)
		s.Require().Len(got, 3)
		s.Equal([]string{"Barkeep", "Bob", "Bobby"}, []string{got[0].Name, got[1].Name, got[2].Name})
		s.Equal(npc, got[0])
		s.Equal(bob, got[1])
		s.Equal(alt, got[2])

		none, err := tx.Tuppers(s.ctx, "g1", "o2")
		s.Require().NoError(err)
		s.Empty(none)
		return nil
	}))

	bob.AccruedRPXP = 0
	bob.LastCollectionAt = ts(1700000500)
	s.update(func(tx rpxp.Tx) error { return tx.UpdateTupper(s.ctx, bob) })
	s.Require().NoError(s.store.View(s.ctx, func(tx rpxp.Tx) error {
		got, err := tx.Tuppers(s.ctx, "g1", "o1")
		s.Require().NoError(err)
		s.Equal(bob, got[1])
		return nil
	}))
}

func (s *Suite) TestTupperUniqueness() {
	bob := rpxp.Tupper{GuildID: "g1", OwnerID: "o1", Tag: "B.", Name: "Bob", Role: rpxp.RolePC, Level: 3}
	s.update(func(tx rpxp.Tx) error { return tx.InsertTupper(s.ctx, bob) })

	sameTag := bob
	sameTag.Name = "Robert"
	s.Error(s.store.Update(s.ctx, func(tx rpxp.Tx) error { return tx.InsertTupper(s.ctx, sameTag) }))

	sameName := bob
	sameName.Tag = "R."
	s.Error(s.store.Update(s.ctx, func(tx rpxp.Tx) error { return tx.InsertTupper(s.ctx, sameName) }))

	otherOwner := bob
	otherOwner.OwnerID = "o2"
	s.NoError(s.store.Update(s.ctx, func(tx rpxp.Tx) error { return tx.InsertTupper(s.ctx, otherOwner) }))

	missing := bob
	missing.Name = "Nobody"
	s.Error(s.store.Update(s.ctx, func(tx rpxp.Tx) error { return tx.UpdateTupper(s.ctx, missing) }))
}

func (s *Suite) TestDeleteCascadesToAlters() {
	s.update(func(tx rpxp.Tx) error {
		for _, tp := range []rpxp.Tupper{
			{GuildID: "g1", OwnerID: "o1", Tag: "B.", Name: "Bob", Role: rpxp.RolePC, Level: 4},
			{GuildID: "g1", OwnerID: "o1", Tag: "b.", Name: "Bobby", Role: rpxp.RoleAlter, Level: 4, Parent: "Bob"},
			{GuildID: "g1", OwnerID: "o1", Tag: "R.", Name: "Rob", Role: rpxp.RoleAlter, Level: 4, Parent: "Bob"},
			{GuildID: "g1", OwnerID: "o1", Tag: "A.", Name: "Ann", Role: rpxp.RolePC, Level: 3},
		} {
			if err := tx.InsertTupper(s.ctx, tp); err != nil {
				return err
			}
		}
		return nil
	})

	var n int64
	s.update(func(tx rpxp.Tx) error {
		var err error
		n, err = tx.DeleteTupper(s.ctx, "g1", "o1", "Bob")
		return err
	})
	s.Equal(int64(3), n)

	s.Require().NoError(s.store.View(s.ctx, func(tx rpxp.Tx) error {
		got, err := tx.Tuppers(s.ctx, "g1", "o1")
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("Ann", got[0].Name)
		return nil
	}))

	s.update(func(tx rpxp.Tx) error {
		var err error
		n, err = tx.DeleteTupper(s.ctx, "g1", "o1", "Nobody")
		return err
	})
	s.Zero(n)
}

func (s *Suite) TestFailedUpdateLeavesNothingBehind() {
	err := s.store.Update(s.ctx, func(tx rpxp.Tx) error {
		if err := tx.SaveGuild(s.ctx, rpxp.Guild{GuildID: "g1", XPPerWord: 0.01}); err != nil {
			return err
		}
		if err := tx.InsertTupper(s.ctx, rpxp.Tupper{GuildID: "g1", OwnerID: "o1", Tag: "B.", Name: "Bob", Role: rpxp.RolePC, Level: 3}); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	s.Require().NoError(s.store.View(s.ctx, func(tx rpxp.Tx) error {
		_, ok, err := tx.Guild(s.ctx, "g1")
		s.Require().NoError(err)
		s.False(ok)
		got, err := tx.Tuppers(s.ctx, "g1", "o1")
		s.Require().NoError(err)
		s.Empty(got)
		return nil
	}))
}
