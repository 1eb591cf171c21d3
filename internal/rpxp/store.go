package rpxp

import "context"

// Store runs units of work against persistent state. A function passed to
// Update either commits completely or leaves nothing behind.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of row operations available inside a unit of work.
// Lookups report absence with ok=false rather than an error.
type Tx interface {
	Guild(ctx context.Context, guildID string) (Guild, bool, error)
	Guilds(ctx context.Context) ([]Guild, error)
	SaveGuild(ctx context.Context, g Guild) error

	User(ctx context.Context, guildID, userID string) (User, bool, error)
	Users(ctx context.Context, guildID string) ([]User, error)
	SaveUser(ctx context.Context, u User) error
	ResetMonthly(ctx context.Context, guildID string) (int64, error)

	// Tuppers returns every character of owner, ordered by name. Callers
	// that intend to modify them get the rows locked where the backend
	// supports it.
	Tuppers(ctx context.Context, guildID, ownerID string) ([]Tupper, error)
	InsertTupper(ctx context.Context, t Tupper) error
	UpdateTupper(ctx context.Context, t Tupper) error
	// DeleteTupper removes the named character and every Alter parented to
	// it, returning how many rows went away.
	DeleteTupper(ctx context.Context, guildID, ownerID, name string) (int64, error)
}

// TagCache remembers which tags an owner has so untagged lines can be
// dropped without opening a transaction.
type TagCache interface {
	Tags(ctx context.Context, guildID, ownerID string) ([]string, bool, error)
	StoreTags(ctx context.Context, guildID, ownerID string, tags []string) error
	Invalidate(ctx context.Context, guildID, ownerID string) error
}

type noopTagCache struct{}

func (noopTagCache) Tags(context.Context, string, string) ([]string, bool, error) {
	return nil, false, nil
}

func (noopTagCache) StoreTags(context.Context, string, string, []string) error { return nil }

func (noopTagCache) Invalidate(context.Context, string, string) error { return nil }
