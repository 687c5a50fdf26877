package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/storage"
	"github.com/rhuss/chatwire/pkg/transport"
)

// setupTestDB starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped when no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if testing.Short() || os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	if err := containerRuntime(ctx); err != nil {
		t.Skipf("skipping: no container runtime: %v", err)
	}

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("chatwire_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

// containerRuntime reports whether a Docker compatible runtime answers.
func containerRuntime(ctx context.Context) error {
	return noPanic(func() error {
		cli, err := testcontainers.NewDockerClientWithOpts(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err = cli.Ping(ctx)
		return err
	})
}

// noPanic turns a panic in fn into an error. testcontainers panics when it
// cannot locate a Docker host.
func noPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn()
}

func TestNoPanic(t *testing.T) {
	err := noPanic(func() error { panic("rootless Docker not found") })
	if err == nil || err.Error() != "rootless Docker not found" {
		t.Errorf("err = %v, want the panic value", err)
	}

	want := errors.New("ping failed")
	if err := noPanic(func() error { return want }); err != want {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func makeTranscript(id string, createdAt int64) *api.Transcript {
	temp := 0.5
	return &api.Transcript{
		ID:       id,
		Object:   "transcript",
		Provider: "aifm",
		Model:    "codellama-70b",
		Messages: []api.ChatMessage{
			{Role: api.RoleUser, Content: api.PartsContent(
				api.TextPart("what is this"),
				api.ImagePart("data:image/png;base64,QUJD"),
			)},
		},
		Options:   api.CompletionOptions{Temperature: &temp},
		Reply:     "a picture",
		CreatedAt: createdAt,
	}
}

func TestPostgres(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		tr := makeTranscript("chat_pg_get", 1000)
		if err := store.SaveTranscript(ctx, tr); err != nil {
			t.Fatalf("SaveTranscript: %v", err)
		}

		got, err := store.GetTranscript(ctx, tr.ID)
		if err != nil {
			t.Fatalf("GetTranscript: %v", err)
		}
		if got.Reply != "a picture" || got.Provider != "aifm" || got.Object != "transcript" {
			t.Errorf("got %+v", got)
		}
		if len(got.Messages) != 1 || len(got.Messages[0].Content.Parts) != 2 {
			t.Errorf("messages = %+v", got.Messages)
		}
		if got.Options.Temperature == nil || *got.Options.Temperature != 0.5 {
			t.Errorf("options = %+v", got.Options)
		}
		if got.Error != nil {
			t.Errorf("Error = %v, want nil", got.Error)
		}
	})

	t.Run("error round trip", func(t *testing.T) {
		tr := makeTranscript("chat_pg_err", 1001)
		tr.Error = api.NewModelError("function is scaling up")
		store.SaveTranscript(ctx, tr)

		got, err := store.GetTranscript(ctx, tr.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Error == nil || got.Error.Type != api.ErrorTypeModelError {
			t.Errorf("Error = %+v", got.Error)
		}
	})

	t.Run("not found and conflict", func(t *testing.T) {
		if _, err := store.GetTranscript(ctx, "chat_pg_missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("missing: err = %v", err)
		}
		tr := makeTranscript("chat_pg_dup", 1002)
		store.SaveTranscript(ctx, tr)
		if err := store.SaveTranscript(ctx, tr); !errors.Is(err, storage.ErrConflict) {
			t.Errorf("duplicate: err = %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		tr := makeTranscript("chat_pg_del", 1003)
		store.SaveTranscript(ctx, tr)

		if err := store.DeleteTranscript(ctx, tr.ID); err != nil {
			t.Fatalf("DeleteTranscript: %v", err)
		}
		if _, err := store.GetTranscript(ctx, tr.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("after delete: err = %v", err)
		}
		if err := store.DeleteTranscript(ctx, tr.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("second delete: err = %v", err)
		}
	})

	t.Run("tenant isolation", func(t *testing.T) {
		ctxA := storage.SetTenant(ctx, "tenant-a")
		ctxB := storage.SetTenant(ctx, "tenant-b")

		tr := makeTranscript("chat_pg_tenant", 1004)
		store.SaveTranscript(ctxA, tr)

		if _, err := store.GetTranscript(ctxA, tr.ID); err != nil {
			t.Errorf("owner: %v", err)
		}
		if _, err := store.GetTranscript(ctxB, tr.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("other tenant: err = %v", err)
		}
		if _, err := store.GetTranscript(ctx, tr.ID); err != nil {
			t.Errorf("single-tenant mode: %v", err)
		}
	})

	t.Run("health", func(t *testing.T) {
		if err := store.HealthCheck(ctx); err != nil {
			t.Errorf("HealthCheck: %v", err)
		}
	})
}

func TestPostgresList(t *testing.T) {
	store := setupTestDB(t)
	ctx := storage.SetTenant(context.Background(), "tenant-list")

	for i := 1; i <= 4; i++ {
		tr := makeTranscript(fmt.Sprintf("chat_list_%d", i), int64(i))
		if i == 4 {
			tr.Provider = "nemo"
		}
		if err := store.SaveTranscript(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name        string
		opts        transport.ListOptions
		want        string
		wantHasMore bool
	}{
		{"desc", transport.ListOptions{}, "[chat_list_4 chat_list_3 chat_list_2 chat_list_1]", false},
		{"asc limit", transport.ListOptions{Order: "asc", Limit: 2}, "[chat_list_1 chat_list_2]", true},
		{"after", transport.ListOptions{After: "chat_list_3"}, "[chat_list_2 chat_list_1]", false},
		{"before", transport.ListOptions{Before: "chat_list_2"}, "[chat_list_4 chat_list_3]", false},
		{"asc after", transport.ListOptions{Order: "asc", After: "chat_list_2"}, "[chat_list_3 chat_list_4]", false},
		{"provider", transport.ListOptions{Provider: "nemo"}, "[chat_list_4]", false},
		{"unknown cursor", transport.ListOptions{After: "chat_nope"}, "[]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.ListTranscripts(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListTranscripts: %v", err)
			}
			var got []string
			for _, tr := range list.Data {
				got = append(got, tr.ID)
			}
			if fmt.Sprint(got) != tt.want {
				t.Errorf("ids = %v, want %s", got, tt.want)
			}
			if list.HasMore != tt.wantHasMore {
				t.Errorf("HasMore = %v", list.HasMore)
			}
		})
	}
}

func TestEmbeddedMigrationsOrdered(t *testing.T) {
	migrations, err := embeddedMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) < 2 {
		t.Fatalf("migrations = %v", migrations)
	}
	for i, m := range migrations {
		if m.version != i+1 {
			t.Errorf("migrations[%d].version = %d, want %d", i, m.version, i+1)
		}
	}
}
