package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_PutGetLink(t *testing.T) {
	var gotAuth string
	var gotNode NodeRequest
	var gotLink LinkRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/kv/threatintel/iocs/ip/1-2-3-4":
			json.NewDecoder(r.Body).Decode(&gotNode)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/kv/threatintel/iocs/ip/1-2-3-4":
			json.NewEncoder(w).Encode(map[string]any{"key_path": "threatintel.iocs.ip.1-2-3-4", "value": map[string]any{"value": "1.2.3.4"}})
		case r.Method == http.MethodGet:
			http.NotFound(w, r)
		case r.Method == http.MethodPut && r.URL.Path == "/links":
			json.NewDecoder(r.Body).Decode(&gotLink)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("unexpected"))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	defer c.Close()
	ctx := context.Background()

	if err := c.PutNode(ctx, "threatintel/iocs/ip/1-2-3-4", NodeRequest{Value: "x", MemoryType: "semantic"}); err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotNode.MemoryType != "semantic" {
		t.Errorf("expected memory type to be sent, got %+v", gotNode)
	}

	node, err := c.GetNode(ctx, "threatintel/iocs/ip/1-2-3-4")
	if err != nil || node == nil {
		t.Fatalf("GetNode: %v %v", node, err)
	}
	if node.Key != "threatintel.iocs.ip.1-2-3-4" {
		t.Errorf("unexpected key %q", node.Key)
	}

	missing, err := c.GetNode(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for a missing node, got %v %v", missing, err)
	}

	if err := c.PutLink(ctx, LinkRequest{From: "a", To: "b", Weight: 1}); err != nil {
		t.Fatalf("PutLink: %v", err)
	}
	if gotLink.From != "a" || gotLink.To != "b" {
		t.Errorf("unexpected link %+v", gotLink)
	}

	err = c.PutNode(ctx, "other", NodeRequest{Value: 1})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError || se.Body != "unexpected" {
		t.Errorf("expected StatusError 500, got %v", err)
	}
}
