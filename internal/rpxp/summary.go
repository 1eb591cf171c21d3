package rpxp

import (
	"context"
	"fmt"
)

func (s *Service) Summary(ctx context.Context, guildID string, scope SummaryScope) (Summary, error) {
	if scope == "" {
		scope = ScopeMonth
	}
	if scope != ScopeMonth && scope != ScopeTotal {
		return Summary{}, fmt.Errorf("%w: unknown summary scope %q", ErrInvalidInput, scope)
	}
	var out Summary
	err := s.store.View(ctx, func(tx Tx) error {
		if _, err := requireGuild(ctx, tx, guildID); err != nil {
			return err
		}
		users, err := tx.Users(ctx, guildID)
		if err != nil {
			return err
		}
		out = Summarize(guildID, scope, users)
		return nil
	})
	return out, err
}

// Rollover snapshots the month's statistics for one guild and zeroes the
// monthly counters in the same unit of work.
func (s *Service) Rollover(ctx context.Context, guildID string) (RolloverResult, error) {
	var out RolloverResult
	err := s.store.Update(ctx, func(tx Tx) error {
		if _, err := requireGuild(ctx, tx, guildID); err != nil {
			return err
		}
		users, err := tx.Users(ctx, guildID)
		if err != nil {
			return err
		}
		out.Summary = Summarize(guildID, ScopeMonth, users)
		n, err := tx.ResetMonthly(ctx, guildID)
		if err != nil {
			return err
		}
		out.UsersReset = n
		return nil
	})
	if err != nil {
		return RolloverResult{}, err
	}
	s.log.Info("monthly rollover", "guild_id", guildID, "users_reset", out.UsersReset, "total_words", out.Summary.TotalWords, "total_xp", out.Summary.TotalXP)
	return out, nil
}

func (s *Service) Guilds(ctx context.Context) ([]Guild, error) {
	var out []Guild
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Guilds(ctx)
		return err
	})
	return out, err
}

// Summarize folds user rows into guild statistics. The top contributor is
// the first user with the most words in scope.
func Summarize(guildID string, scope SummaryScope, users []User) Summary {
	out := Summary{GuildID: guildID, Scope: scope, Users: len(users)}
	for _, u := range users {
		words, xp := u.MonthlyMessages, u.MonthlyRPXP
		if scope == ScopeTotal {
			words, xp = u.TotalMessages, u.TotalRPXP
		}
		out.TotalWords += words
		out.TotalXP += xp
		if words > out.TopWords {
			out.TopWords = words
			out.TopUserID = u.UserID
		}
	}
	if out.Users > 0 {
		out.AverageWords = float64(out.TotalWords) / float64(out.Users)
		out.AverageXP = float64(out.TotalXP) / float64(out.Users)
	}
	return out
}
