package testutil

import (
	"context"
	"testing"

	"github.com/borisblack/scicms-client-sub000/types"
)

func TestLoadUniverse(t *testing.T) {
	s, schema, u := LoadUniverse(t)

	if s == nil || schema == nil || u == nil {
		t.Fatal("fixture should not be nil")
	}

	// ids are handed out in creation order
	if u.Avatar.ID() != "id-1" {
		t.Errorf("expected avatar id-1, got %q", u.Avatar.ID())
	}
	if u.Article.ID() != "id-10" {
		t.Errorf("expected article id-10, got %q", u.Article.ID())
	}

	if u.Alice.String("username") != "alice" {
		t.Errorf("unexpected alice record: %v", u.Alice)
	}
	if u.Article.MajorRev() != "v1" || u.Article.Locale() != "en" {
		t.Errorf("article should be v1/en, got %q/%q", u.Article.MajorRev(), u.Article.Locale())
	}

	item, err := schema.GetByName("book")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := s.Execute(context.Background(), &types.Operation{Kind: types.OpFind, Item: item.Name})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 3 {
		t.Errorf("expected 3 books, got %d", len(resp.Data))
	}
}

func TestSchema(t *testing.T) {
	schema := Schema(t)
	want := []string{"article", "audit", "book", "contract", "location", "media", "tag", "user"}
	got := schema.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSequentialIDs(t *testing.T) {
	next := SequentialIDs("x")
	if a, b := next(), next(); a != "x-1" || b != "x-2" {
		t.Errorf("unexpected ids %q %q", a, b)
	}
}
