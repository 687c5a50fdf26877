package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/storage"
	"github.com/rhuss/chatwire/pkg/transport"
)

func makeTranscript(id string, createdAt int64) *api.Transcript {
	return &api.Transcript{
		ID:        id,
		Object:    "transcript",
		Provider:  "aifm",
		Model:     "codellama-70b",
		Messages:  []api.ChatMessage{{Role: api.RoleUser, Content: api.TextContent("hello")}},
		Reply:     "hi there",
		CreatedAt: createdAt,
	}
}

func ids(list *transport.TranscriptList) []string {
	out := make([]string, len(list.Data))
	for i, t := range list.Data {
		out[i] = t.ID
	}
	return out
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveTranscript(ctx, makeTranscript("chat_1", 1000)); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.GetTranscript(ctx, "chat_1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Reply != "hi there" || got.Model != "codellama-70b" {
		t.Errorf("got %+v", got)
	}

	if err := s.SaveTranscript(ctx, makeTranscript("chat_1", 2000)); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate save: err = %v, want ErrConflict", err)
	}
	if _, err := s.GetTranscript(ctx, "chat_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.SaveTranscript(ctx, makeTranscript("chat_del", 1000))

	if err := s.DeleteTranscript(ctx, "chat_del"); err != nil {
		t.Fatalf("DeleteTranscript: %v", err)
	}
	if _, err := s.GetTranscript(ctx, "chat_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("after delete: err = %v", err)
	}
	if err := s.DeleteTranscript(ctx, "chat_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(0)
	org1 := storage.SetTenant(context.Background(), "org-1")
	org2 := storage.SetTenant(context.Background(), "org-2")

	s.SaveTranscript(org1, makeTranscript("chat_a", 1000))

	if _, err := s.GetTranscript(org2, "chat_a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-tenant get: err = %v", err)
	}
	if err := s.DeleteTranscript(org2, "chat_a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-tenant delete: err = %v", err)
	}
	if list, _ := s.ListTranscripts(org2, transport.ListOptions{}); len(list.Data) != 0 {
		t.Errorf("cross-tenant list = %v", ids(list))
	}

	if _, err := s.GetTranscript(org1, "chat_a"); err != nil {
		t.Errorf("owner get: %v", err)
	}
	if _, err := s.GetTranscript(context.Background(), "chat_a"); err != nil {
		t.Errorf("single-tenant get: %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	s.SaveTranscript(ctx, makeTranscript("chat_1", 1))
	s.SaveTranscript(ctx, makeTranscript("chat_2", 2))

	// Reading chat_1 makes chat_2 the eviction candidate.
	if _, err := s.GetTranscript(ctx, "chat_1"); err != nil {
		t.Fatal(err)
	}
	s.SaveTranscript(ctx, makeTranscript("chat_3", 3))

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if _, err := s.GetTranscript(ctx, "chat_2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("chat_2 should be evicted, err = %v", err)
	}
	for _, id := range []string{"chat_1", "chat_3"} {
		if _, err := s.GetTranscript(ctx, id); err != nil {
			t.Errorf("%s: %v", id, err)
		}
	}
}

func TestList(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		tr := makeTranscript(fmt.Sprintf("chat_%d", i), int64(i))
		if i%2 == 0 {
			tr.Provider = "nemo"
			tr.Model = "gpt-43b-905"
		}
		s.SaveTranscript(ctx, tr)
	}

	tests := []struct {
		name        string
		opts        transport.ListOptions
		want        []string
		wantHasMore bool
	}{
		{"default newest first", transport.ListOptions{}, []string{"chat_5", "chat_4", "chat_3", "chat_2", "chat_1"}, false},
		{"ascending", transport.ListOptions{Order: "asc"}, []string{"chat_1", "chat_2", "chat_3", "chat_4", "chat_5"}, false},
		{"limit", transport.ListOptions{Limit: 2}, []string{"chat_5", "chat_4"}, true},
		{"after", transport.ListOptions{After: "chat_4", Limit: 2}, []string{"chat_3", "chat_2"}, true},
		{"before", transport.ListOptions{Before: "chat_2"}, []string{"chat_5", "chat_4", "chat_3"}, false},
		{"unknown cursor", transport.ListOptions{After: "chat_x"}, []string{}, false},
		{"provider filter", transport.ListOptions{Provider: "nemo"}, []string{"chat_4", "chat_2"}, false},
		{"model filter", transport.ListOptions{Model: "codellama-70b", Order: "asc"}, []string{"chat_1", "chat_3", "chat_5"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListTranscripts(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			got := ids(list)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
			if list.HasMore != tt.wantHasMore {
				t.Errorf("HasMore = %v, want %v", list.HasMore, tt.wantHasMore)
			}
			if list.Data == nil {
				t.Error("Data must not be nil")
			}
			if len(got) > 0 && (list.FirstID != got[0] || list.LastID != got[len(got)-1]) {
				t.Errorf("FirstID/LastID = %q/%q", list.FirstID, list.LastID)
			}
		})
	}
}
