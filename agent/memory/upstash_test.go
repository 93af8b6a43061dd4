package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

func newUpstashTestCache(t *testing.T, handler http.HandlerFunc) *UpstashCache {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cache, err := NewUpstashCache(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashCache() error = %v", err)
	}
	return cache
}

func TestUpstashCacheSetSendsExpiry(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	var gotAuth string
	cache := newUpstashTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	})

	if err := cache.SetEX(context.Background(), "chat:context:user:1", []byte(`[]`), 5*time.Minute); err != nil {
		t.Fatalf("SetEX() error = %v", err)
	}

	if gotAuth != "Bearer token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotCommand) != 5 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[1] != "chat:context:user:1" || gotCommand[3] != "EX" {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	// JSON numbers decode as float64.
	if gotCommand[4] != float64(300) {
		t.Fatalf("ttl = %v, want 300", gotCommand[4])
	}
}

func TestUpstashCacheGetDecodesPayload(t *testing.T) {
	t.Parallel()

	encoded, err := json.Marshal(`[{"role":"user","content":"hi","timestamp":1}]`)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var gotCommand []any
	cache := newUpstashTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	})

	got, err := cache.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `[{"role":"user","content":"hi","timestamp":1}]` {
		t.Fatalf("Get() = %s", got)
	}
	if gotCommand[0] != "GET" || gotCommand[1] != "k" {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
}

func TestUpstashCacheGetMiss(t *testing.T) {
	t.Parallel()

	cache := newUpstashTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	})

	if _, err := cache.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestUpstashCacheSurfacesRESTError(t *testing.T) {
	t.Parallel()

	cache := newUpstashTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGTYPE"}`)
	})

	if _, err := cache.Get(context.Background(), "k"); err == nil || err.Error() != "WRONGTYPE" {
		t.Fatalf("Get() error = %v, want WRONGTYPE", err)
	}
}

func TestNewUpstashCacheValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashCache(UpstashRedisConfig{Token: "t"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashCache(UpstashRedisConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestStoreOverUpstashCache(t *testing.T) {
	t.Parallel()

	stored := map[string]string{}
	cache := newUpstashTestCache(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
			return
		}
		switch cmd[0] {
		case "GET":
			v, ok := stored[cmd[1].(string)]
			if !ok {
				fmt.Fprint(w, `{"result":null}`)
				return
			}
			encoded, _ := json.Marshal(v)
			fmt.Fprintf(w, `{"result":%s}`, encoded)
		case "SET":
			stored[cmd[1].(string)] = cmd[2].(string)
			fmt.Fprint(w, `{"result":"OK"}`)
		}
	})

	store, err := NewStore(cache)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	ctx := context.Background()
	if err := store.Append(ctx, "user:9", contractx.Turn{Role: contractx.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	got, err := store.Recent(ctx, "user:9")
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("Recent() = %#v", got)
	}
}
