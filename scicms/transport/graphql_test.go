package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/borisblack/scicms-client-sub000/types"
)

type recordedRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
	auth      string
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(rec); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestExecute(t *testing.T) {
	t.Run("find with pagination", func(t *testing.T) {
		srv, rec := newServer(t, http.StatusOK, `{"data":{"users":{
			"data":[{"id":"1","username":"alice"},{"id":"2","username":"bob"}],
			"meta":{"pagination":{"page":1,"pageCount":1,"pageSize":20,"total":2}}}}}`)

		op := &types.Operation{
			Kind:      types.OpFind,
			Item:      "user",
			Field:     "users",
			Document:  "query findUsers { users { data { id } } }",
			Variables: map[string]interface{}{"sort": []string{"username:asc"}},
		}
		resp, err := New(srv.URL, nil, WithToken("secret")).Execute(context.Background(), op)
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}

		if rec.auth != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", rec.auth)
		}
		if rec.Query != op.Document {
			t.Errorf("unexpected query %q", rec.Query)
		}
		if diff := cmp.Diff([]interface{}{"username:asc"}, rec.Variables["sort"]); diff != "" {
			t.Errorf("variables mismatch (-want +got):\n%s", diff)
		}

		if len(resp.Data) != 2 || resp.Data[1].String("username") != "bob" {
			t.Errorf("unexpected data %v", resp.Data)
		}
		want := &types.Pagination{Page: 1, PageCount: 1, PageSize: 20, Total: 2}
		if diff := cmp.Diff(want, resp.Pagination); diff != "" {
			t.Errorf("pagination mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("lock result", func(t *testing.T) {
		srv, rec := newServer(t, http.StatusOK, `{"data":{"lockUser":{"success":false,"data":{"id":"1","lockedBy":"u2"}}}}`)
		op := &types.Operation{Kind: types.OpLock, Item: "user", Field: "lockUser", Document: "mutation"}

		resp, err := New(srv.URL, nil).Execute(context.Background(), op)
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		if rec.auth != "" {
			t.Errorf("expected no authorization header, got %q", rec.auth)
		}
		if resp.Success == nil || *resp.Success {
			t.Errorf("expected success=false, got %v", resp.Success)
		}
		if len(resp.Data) != 1 || resp.Data[0].LockedBy() != "u2" {
			t.Errorf("unexpected data %v", resp.Data)
		}
	})

	t.Run("backend errors become descriptors", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusOK, `{"errors":[{"message":"Access denied"}],"data":null}`)
		op := &types.Operation{Kind: types.OpUpdate, Item: "user", Field: "updateUser", Document: "mutation"}

		resp, err := New(srv.URL, nil).Execute(context.Background(), op)
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		want := []types.ErrorDescriptor{{Message: "Access denied", Path: []string{"updateUser"}}}
		if diff := cmp.Diff(want, resp.Errors); diff != "" {
			t.Errorf("errors mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("server failure is an error", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusInternalServerError, ``)
		op := &types.Operation{Kind: types.OpFind, Item: "user", Field: "users", Document: "query"}

		if _, err := New(srv.URL, nil).Execute(context.Background(), op); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusOK, `{"data":{}}`)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		op := &types.Operation{Kind: types.OpFind, Item: "user", Field: "users", Document: "query"}

		if _, err := New(srv.URL, nil).Execute(ctx, op); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestDecode(t *testing.T) {
	op := &types.Operation{Field: "createUser"}

	resp, err := Decode(op, json.RawMessage(`{"data":{"id":"9","author":{"data":{"id":"3"}}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].RelationID("author") != "3" {
		t.Errorf("unexpected data %v", resp.Data)
	}

	resp, err = Decode(op, nil)
	if err != nil || len(resp.Data) != 0 {
		t.Errorf("missing field should decode to an empty response, got %v %v", resp, err)
	}

	if _, err := Decode(op, json.RawMessage(`{"data":"oops"}`)); err == nil {
		t.Error("expected decode error")
	}
}
