package viewstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test when none
// is running. Integration tests use a container instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "plain",
			key:  Key{Session: "abc", View: "transfers"},
			want: "panel:view:transfers:session=abc",
		},
		{
			name: "view trimmed",
			key:  Key{Session: "abc", View: "/transfers/"},
			want: "panel:view:transfers:session=abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{"complete", Key{Session: "s", View: "v"}, false},
		{"no session", Key{View: "v"}, true},
		{"blank session", Key{Session: "  ", View: "v"}, true},
		{"no view", Key{Session: "s"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Validate() error = %v, want %v", err, ErrInvalidKey)
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store := NewStore(client, 0)
	if store.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", store.TTL(), DefaultTTL)
	}

	store = NewStore(client, time.Hour)
	if store.TTL() != time.Hour {
		t.Errorf("TTL() = %v, want %v", store.TTL(), time.Hour)
	}
}

func TestNewStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStore should panic with nil redis client")
		}
	}()
	NewStore(nil, time.Hour)
}

func TestStore_InvalidInput(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	store := NewStore(client, time.Hour)
	ctx := context.Background()

	if _, err := store.Load(ctx, Key{View: "transfers"}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Load() error = %v, want %v", err, ErrInvalidKey)
	}
	if err := store.Save(ctx, Key{Session: "s", View: "transfers"}, query.Spec{Page: 0, PageSize: 10}); !errors.Is(err, query.ErrInvalidPage) {
		t.Errorf("Save() error = %v, want %v", err, query.ErrInvalidPage)
	}
	if err := store.Delete(ctx, Key{Session: "s"}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Delete() error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	key := Key{Session: "session-1", View: "stock-adjustments"}
	spec, err := query.New(3, 25,
		query.WithSort("data", query.Desc),
		query.WithFilter("tipo", query.String("5")),
		query.WithFilter("ativo", query.Bool(true)),
		query.WithFilter("codigo", query.String("true")),
		query.WithSearch("parafuso"),
	)
	if err != nil {
		t.Fatalf("query.New() error = %v", err)
	}

	if err := store.Save(ctx, key, spec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.Equal(spec) {
		t.Errorf("Load() = %s, want %s", got.Key(), spec.Key())
	}
	if !got.Filters["ativo"].IsBool() {
		t.Error("boolean filter came back as string")
	}
	if got.Filters["codigo"].IsBool() {
		t.Error("string filter came back as boolean")
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute)

	_, err := store.Load(context.Background(), Key{Session: "nobody", View: "transfers"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want %v", err, ErrNotFound)
	}
}

func TestStore_LoadCorrupted(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	key := Key{Session: "s", View: "collections"}
	client.Set(ctx, key.String(), `{"spec": {"page": 0, "pageSize": 10}}`, time.Minute)

	if _, err := store.Load(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Load() error = %v, want %v", err, ErrInvalidEntry)
	}

	client.Set(ctx, key.String(), `not json`, time.Minute)
	if _, err := store.Load(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Load() error = %v, want %v", err, ErrInvalidEntry)
	}
}

func TestStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	key := Key{Session: "s", View: "sales-reviews"}
	spec, _ := query.New(1, 10)
	if err := store.Save(ctx, key, spec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete error = %v, want %v", err, ErrNotFound)
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	a, _ := query.New(2, 10)
	b, _ := query.New(7, 10)
	store.Save(ctx, Key{Session: "a", View: "transfers"}, a)
	store.Save(ctx, Key{Session: "b", View: "transfers"}, b)

	got, err := store.Load(ctx, Key{Session: "a", View: "transfers"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Page != 2 {
		t.Errorf("Page = %d, want 2", got.Page)
	}
}
