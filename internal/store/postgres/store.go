// Package postgres provides a PostgreSQL-backed character store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/migrations"
)

type Store struct {
	db *pgxpool.Pool
}

var _ rpxp.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s != nil && s.db != nil {
		s.db.Close()
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	all, err := migrations.For("postgres")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, m := range all {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists); err != nil {
			return applied, fmt.Errorf("read schema_migrations: %w", err)
		}
		if exists {
			continue
		}
		err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func (s *Store) Update(ctx context.Context, fn func(rpxp.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)
	if err := fn(&tx{tx: pgTx, lock: true}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(rpxp.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)
	return fn(&tx{tx: pgTx})
}

type tx struct {
	tx   pgx.Tx
	lock bool
}

const guildColumns = `guild_id, staff_role_id, log_channel_id, cooldown_seconds, xp_per_word, level_falloff_percent`

func scanGuild(row pgx.Row) (rpxp.Guild, error) {
	var g rpxp.Guild
	err := row.Scan(&g.GuildID, &g.StaffRoleID, &g.LogChannelID, &g.CooldownSeconds, &g.XPPerWord, &g.LevelFalloffPercent)
	return g, err
}

func (t *tx) Guild(ctx context.Context, guildID string) (rpxp.Guild, bool, error) {
	g, err := scanGuild(t.tx.QueryRow(ctx, `SELECT `+guildColumns+` FROM guilds WHERE guild_id = $1`, guildID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rpxp.Guild{}, false, nil
	}
	if err != nil {
		return rpxp.Guild{}, false, fmt.Errorf("read guild: %w", err)
	}
	return g, true, nil
}

func (t *tx) Guilds(ctx context.Context) ([]rpxp.Guild, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+guildColumns+` FROM guilds ORDER BY guild_id`)
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
	_, err := t.tx.Exec(ctx, `
		INSERT INTO guilds (`+guildColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guild_id) DO UPDATE SET
			staff_role_id = EXCLUDED.staff_role_id,
			log_channel_id = EXCLUDED.log_channel_id,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			xp_per_word = EXCLUDED.xp_per_word,
			level_falloff_percent = EXCLUDED.level_falloff_percent
	`, g.GuildID, g.StaffRoleID, g.LogChannelID, g.CooldownSeconds, g.XPPerWord, g.LevelFalloffPercent)
	if err != nil {
		return fmt.Errorf("save guild: %w", err)
	}
	return nil
}

const userColumns = `guild_id, user_id, monthly_messages, monthly_rpxp, total_messages, total_rpxp`

func scanUser(row pgx.Row) (rpxp.User, error) {
	var u rpxp.User
	err := row.Scan(&u.GuildID, &u.UserID, &u.MonthlyMessages, &u.MonthlyRPXP, &u.TotalMessages, &u.TotalRPXP)
	return u, err
}

func (t *tx) User(ctx context.Context, guildID, userID string) (rpxp.User, bool, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE guild_id = $1 AND user_id = $2`
	if t.lock {
		q += ` FOR UPDATE`
	}
	u, err := scanUser(t.tx.QueryRow(ctx, q, guildID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rpxp.User{}, false, nil
	}
	if err != nil {
		return rpxp.User{}, false, fmt.Errorf("read user: %w", err)
	}
	return u, true, nil
}

func (t *tx) Users(ctx context.Context, guildID string) ([]rpxp.User, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE guild_id = $1 ORDER BY user_id`, guildID)
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
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			monthly_messages = EXCLUDED.monthly_messages,
			monthly_rpxp = EXCLUDED.monthly_rpxp,
			total_messages = EXCLUDED.total_messages,
			total_rpxp = EXCLUDED.total_rpxp
	`, u.GuildID, u.UserID, u.MonthlyMessages, u.MonthlyRPXP, u.TotalMessages, u.TotalRPXP)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (t *tx) ResetMonthly(ctx context.Context, guildID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET monthly_messages = 0, monthly_rpxp = 0 WHERE guild_id = $1`, guildID)
	if err != nil {
		return 0, fmt.Errorf("reset monthly: %w", err)
	}
	return tag.RowsAffected(), nil
}

const tupperColumns = `guild_id, owner_id, tag, name, role, level, accrued_rpxp, last_message_at, last_collection_at, parent`

func (t *tx) Tuppers(ctx context.Context, guildID, ownerID string) ([]rpxp.Tupper, error) {
	q := `SELECT ` + tupperColumns + ` FROM tuppers WHERE guild_id = $1 AND owner_id = $2 ORDER BY name`
	if t.lock {
		q += ` FOR UPDATE`
	}
	rows, err := t.tx.Query(ctx, q, guildID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tuppers: %w", err)
	}
	defer rows.Close()
	var out []rpxp.Tupper
	for rows.Next() {
		var (
			tp             rpxp.Tupper
			role           string
			level          *int32
			lastMessage    *int64
			lastCollection *int64
			parent         *string
		)
		if err := rows.Scan(&tp.GuildID, &tp.OwnerID, &tp.Tag, &tp.Name, &role, &level, &tp.AccruedRPXP, &lastMessage, &lastCollection, &parent); err != nil {
			return nil, fmt.Errorf("scan tupper: %w", err)
		}
		tp.Role = rpxp.Role(role)
		if level != nil {
			tp.Level = int(*level)
		}
		tp.LastMessageAt = fromUnix(lastMessage)
		tp.LastCollectionAt = fromUnix(lastCollection)
		if parent != nil {
			tp.Parent = *parent
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

func (t *tx) InsertTupper(ctx context.Context, tp rpxp.Tupper) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO tuppers (`+tupperColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, tp.GuildID, tp.OwnerID, tp.Tag, tp.Name, string(tp.Role), levelValue(tp), tp.AccruedRPXP,
		toUnix(tp.LastMessageAt), toUnix(tp.LastCollectionAt), parentValue(tp))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", rpxp.ErrDuplicateTag, tp.Tag)
	}
	if err != nil {
		return fmt.Errorf("insert tupper: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (t *tx) UpdateTupper(ctx context.Context, tp rpxp.Tupper) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE tuppers
		SET tag = $4, role = $5, level = $6, accrued_rpxp = $7, last_message_at = $8, last_collection_at = $9, parent = $10
		WHERE guild_id = $1 AND owner_id = $2 AND name = $3
	`, tp.GuildID, tp.OwnerID, tp.Name, tp.Tag, string(tp.Role), levelValue(tp), tp.AccruedRPXP,
		toUnix(tp.LastMessageAt), toUnix(tp.LastCollectionAt), parentValue(tp))
	if err != nil {
		return fmt.Errorf("update tupper: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tupper: %q does not exist", tp.Name)
	}
	return nil
}

func (t *tx) DeleteTupper(ctx context.Context, guildID, ownerID, name string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM tuppers
		WHERE guild_id = $1 AND owner_id = $2 AND (name = $3 OR (role = 'ALTER' AND parent = $3))
	`, guildID, ownerID, name)
	if err != nil {
		return 0, fmt.Errorf("delete tupper: %w", err)
	}
	return tag.RowsAffected(), nil
}

func levelValue(tp rpxp.Tupper) *int32 {
	if tp.Role == rpxp.RoleNPC || tp.Level == 0 {
		return nil
	}
	v := int32(tp.Level)
	return &v
}

func parentValue(tp rpxp.Tupper) *string {
	if tp.Parent == "" {
		return nil
	}
	return &tp.Parent
}

func toUnix(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UTC().Unix()
	return &v
}

func fromUnix(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
