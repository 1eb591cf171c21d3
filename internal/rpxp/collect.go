package rpxp

import (
	"context"
	"slices"
	"time"
)

// Collect moves the owner's accrued pools into their account totals.
//
// Each PC or NPC is gated on its own cooldown and only the eligible ones
// advance last_collection_at. Once any of them is eligible, every pool the
// owner holds is credited and reset.
func (s *Service) Collect(ctx context.Context, guildID, ownerID string) (CollectResult, error) {
	out := CollectResult{PCs: []Collection{}}
	err := s.store.Update(ctx, func(tx Tx) error {
		g, err := requireGuild(ctx, tx, guildID)
		if err != nil {
			return err
		}
		tuppers, err := tx.Tuppers(ctx, guildID, ownerID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		eligible, readyAt, owned := collectable(tuppers, now, g.Cooldown())
		if !owned {
			return ErrNothingToCollect
		}
		if len(eligible) == 0 {
			return &CooldownError{ReadyAt: readyAt}
		}

		var npcPool float64
		for _, t := range tuppers {
			switch t.Role {
			case RoleNPC:
				npcPool += t.AccruedRPXP
			case RolePC:
				out.PCs = append(out.PCs, Collection{Name: t.Name, RPXP: RoundXP(t.AccruedRPXP)})
			}
		}
		for _, c := range out.PCs {
			out.PCTotal += c.RPXP
		}
		out.NPCBonus = RoundXP(npcPool)
		out.Total = out.PCTotal + out.NPCBonus
		if out.Total == 0 {
			return ErrNothingToCollect
		}
		out.PCs = nonZero(out.PCs)

		for _, t := range tuppers {
			if t.Role == RoleAlter {
				continue
			}
			if slices.ContainsFunc(eligible, func(e Tupper) bool { return e.Name == t.Name }) {
				t.LastCollectionAt = &now
			} else if t.AccruedRPXP == 0 {
				continue
			}
			t.AccruedRPXP = 0
			if err := tx.UpdateTupper(ctx, t); err != nil {
				return err
			}
		}
		u, err := ensureUser(ctx, tx, guildID, ownerID)
		if err != nil {
			return err
		}
		u.MonthlyRPXP += out.Total
		u.TotalRPXP += out.Total
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		out.User = u
		return nil
	})
	if err != nil {
		return CollectResult{}, err
	}
	s.log.Info("rpxp collected", "guild_id", guildID, "owner_id", ownerID, "pc_total", out.PCTotal, "npc_bonus", out.NPCBonus)
	return out, nil
}

// collectable picks the owner's non-Alter characters whose cooldown has
// elapsed and reports when the locked ones open up again.
// owned is false when the owner has no PC or NPC at all.
func collectable(tuppers []Tupper, now time.Time, cooldown time.Duration) (eligible []Tupper, readyAt time.Time, owned bool) {
	var latest time.Time
	for _, t := range tuppers {
		if t.Role == RoleAlter {
			continue
		}
		owned = true
		last := time.Unix(0, 0).UTC()
		if t.LastCollectionAt != nil {
			last = t.LastCollectionAt.UTC()
		}
		if now.Sub(last) > cooldown {
			eligible = append(eligible, t)
			continue
		}
		if last.After(latest) {
			latest = last
		}
	}
	return eligible, latest.Add(cooldown), owned
}

func nonZero(in []Collection) []Collection {
	out := in[:0]
	for _, c := range in {
		if c.RPXP != 0 {
			out = append(out, c)
		}
	}
	return out
}
