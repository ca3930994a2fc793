package imagegate

import "context"

// Store is the shared key-value medium holding admission state.
// Values are decimal integers or YYYY-MM-DD date strings.
type Store interface {
	// Get returns the value for key. ok is false if the key is unset.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set overwrites the value for key.
	Set(ctx context.Context, key, value string) error
}

// Adder is implemented by stores that can change an integer key atomically.
// The result is floored at zero. An unset key counts as zero.
type Adder interface {
	Add(ctx context.Context, key string, delta int64) (int64, error)
}

// Watcher is implemented by stores that publish changes to other readers.
type Watcher interface {
	// Watch registers fn for every change until ctx is done.
	// It returns once the subscription is established.
	Watch(ctx context.Context, fn func(ChangeEvent)) error
}

// ChangeEvent describes a write observed on a store.
type ChangeEvent struct {
	Key   string
	Value string
}

// Keys names the store keys used for admission state.
type Keys struct {
	Active     string `yaml:"active"`
	DailyCount string `yaml:"daily_count"`
	LastDate   string `yaml:"last_date"`
}

// DefaultKeys returns the standard key layout.
func DefaultKeys() Keys {
	return Keys{
		Active:     "imageapp_active_requests",
		DailyCount: "imageapp_daily_count",
		LastDate:   "imageapp_last_date",
	}
}
