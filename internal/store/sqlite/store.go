// Package sqlite provides a SQLite-backed character store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/migrations"
)

type Store struct {
	db *sql.DB
}

var _ rpxp.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies pending embedded migrations.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	all, err := migrations.For("sqlite")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, m := range all {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&n); err != nil {
			return applied, fmt.Errorf("read schema_migrations: %w", err)
		}
		if n > 0 {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, m.Version, time.Now().UTC().Unix()); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %s: %w", m.Version, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func (s *Store) Update(ctx context.Context, fn func(rpxp.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()
	if err := fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(rpxp.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()
	return fn(&tx{tx: sqlTx})
}

type tx struct {
	tx *sql.Tx
}

const guildColumns = `guild_id, staff_role_id, log_channel_id, cooldown_seconds, xp_per_word, level_falloff_percent`

func scanGuild(row interface{ Scan(...any) error }) (rpxp.Guild, error) {
	var g rpxp.Guild
	err := row.Scan(&g.GuildID, &g.StaffRoleID, &g.LogChannelID, &g.CooldownSeconds, &g.XPPerWord, &g.LevelFalloffPercent)
	return g, err
}

func (t *tx) Guild(ctx context.Context, guildID string) (rpxp.Guild, bool, error) {
	g, err := scanGuild(t.tx.QueryRowContext(ctx, `SELECT `+guildColumns+` FROM guilds WHERE guild_id = ?`, guildID))
	if errors.Is(err, sql.ErrNoRows) {
		return rpxp.Guild{}, false, nil
	}
	if err != nil {
		return rpxp.Guild{}, false, fmt.Errorf("read guild: %w", err)
	}
	return g, true, nil
}

func (t *tx) Guilds(ctx context.Context) ([]rpxp.Guild, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+guildColumns+` FROM guilds ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()
	var out []rpxp.Guild
	for rows.Next() {
		g, err := scanGuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (t *tx) SaveGuild(ctx context.Context, g rpxp.Guild) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO guilds (`+guildColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			staff_role_id = excluded.staff_role_id,
			log_channel_id = excluded.log_channel_id,
			cooldown_seconds = excluded.cooldown_seconds,
			xp_per_word = excluded.xp_per_word,
			level_falloff_percent = excluded.level_falloff_percent
	`, g.GuildID, g.StaffRoleID, g.LogChannelID, g.CooldownSeconds, g.XPPerWord, g.LevelFalloffPercent)
	if err != nil {
		return fmt.Errorf("save guild: %w", err)
	}
	return nil
}

const userColumns = `guild_id, user_id, monthly_messages, monthly_rpxp, total_messages, total_rpxp`

func scanUser(row interface{ Scan(...any) error }) (rpxp.User, error) {
	var u rpxp.User
	err := row.Scan(&u.GuildID, &u.UserID, &u.MonthlyMessages, &u.MonthlyRPXP, &u.TotalMessages, &u.TotalRPXP)
	return u, err
}

func (t *tx) User(ctx context.Context, guildID, userID string) (rpxp.User, bool, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE guild_id = ? AND user_id = ?`, guildID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return rpxp.User{}, false, nil
	}
	if err != nil {
		return rpxp.User{}, false, fmt.Errorf("read user: %w", err)
	}
	return u, true, nil
}

func (t *tx) Users(ctx context.Context, guildID string) ([]rpxp.User, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE guild_id = ? ORDER BY user_id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []rpxp.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *tx) SaveUser(ctx context.Context, u rpxp.User) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			monthly_messages = excluded.monthly_messages,
			monthly_rpxp = excluded.monthly_rpxp,
			total_messages = excluded.total_messages,
			total_rpxp = excluded.total_rpxp
	`, u.GuildID, u.UserID, u.MonthlyMessages, u.MonthlyRPXP, u.TotalMessages, u.TotalRPXP)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (t *tx) ResetMonthly(ctx context.Context, guildID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE users SET monthly_messages = 0, monthly_rpxp = 0 WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, fmt.Errorf("reset monthly: %w", err)
	}
	return res.RowsAffected()
}

const tupperColumns = `guild_id, owner_id, tag, name, role, level, accrued_rpxp, last_message_at, last_collection_at, parent`

func (t *tx) Tuppers(ctx context.Context, guildID, ownerID string) ([]rpxp.Tupper, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+tupperColumns+` FROM tuppers WHERE guild_id = ? AND owner_id = ? ORDER BY name`, guildID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tuppers: %w", err)
	}
	defer rows.Close()
	var out []rpxp.Tupper
	for rows.Next() {
		var (
			tp             rpxp.Tupper
			role           string
			level          sql.NullInt64
			lastMessage    sql.NullInt64
			lastCollection sql.NullInt64
			parent         sql.NullString
		)
		if err := rows.Scan(&tp.GuildID, &tp.OwnerID, &tp.Tag, &tp.Name, &role, &level, &tp.AccruedRPXP, &lastMessage, &lastCollection, &parent); err != nil {
			return nil, fmt.Errorf("scan tupper: %w", err)
		}
		tp.Role = rpxp.Role(role)
		tp.Level = int(level.Int64)
		tp.LastMessageAt = fromUnix(lastMessage)
		tp.LastCollectionAt = fromUnix(lastCollection)
		tp.Parent = parent.String
		out = append(out, tp)
	}
	return out, rows.Err()
}

func (t *tx) InsertTupper(ctx context.Context, tp rpxp.Tupper) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tuppers (`+tupperColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tp.GuildID, tp.OwnerID, tp.Tag, tp.Name, string(tp.Role), levelValue(tp), tp.AccruedRPXP,
		toUnix(tp.LastMessageAt), toUnix(tp.LastCollectionAt), parentValue(tp))
	if err != nil {
		return fmt.Errorf("insert tupper: %w", err)
	}
	return nil
}

func (t *tx) UpdateTupper(ctx context.Context, tp rpxp.Tupper) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE tuppers
		SET tag = ?, role = ?, level = ?, accrued_rpxp = ?, last_message_at = ?, last_collection_at = ?, parent = ?
		WHERE guild_id = ? AND owner_id = ? AND name = ?
	`, tp.Tag, string(tp.Role), levelValue(tp), tp.AccruedRPXP, toUnix(tp.LastMessageAt), toUnix(tp.LastCollectionAt), parentValue(tp),
		tp.GuildID, tp.OwnerID, tp.Name)
	if err != nil {
		return fmt.Errorf("update tupper: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tupper: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update tupper: %q does not exist", tp.Name)
	}
	return nil
}

func (t *tx) DeleteTupper(ctx context.Context, guildID, ownerID, name string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM tuppers
		WHERE guild_id = ? AND owner_id = ? AND (name = ? OR (role = 'ALTER' AND parent = ?))
	`, guildID, ownerID, name, name)
	if err != nil {
		return 0, fmt.Errorf("delete tupper: %w", err)
	}
	return res.RowsAffected()
}

func levelValue(tp rpxp.Tupper) sql.NullInt64 {
	if tp.Role == rpxp.RoleNPC || tp.Level == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(tp.Level), Valid: true}
}

func parentValue(tp rpxp.Tupper) sql.NullString {
	if tp.Parent == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.Parent, Valid: true}
}

func toUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
