// Minimal end-to-end smoke test for the governance HTTP API.
//
// Run from repo root against a running service:
//
//	go run ./docs/scripts/test_api.go
//
// Environment:
//
//	API_URL     base URL (default http://localhost:8087)
//	JWT_SECRET  secret shared with the service, enables the admin check
//	THREAD_ID   optional proposal thread to look up
//	REDIS_URL   optional, reports live click cooldown keys
//
// Flow:
//
//  1. GET /healthz               assert ok and request id echo
//  2. GET /v1/proposals/:thread  assert the proposal resolves
//  3. GET /v1/admin/scheduler    assert the token is accepted
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var baseURL = getenv("API_URL", "http://localhost:8087")

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	checkHealth()

	if thread := os.Getenv("THREAD_ID"); thread != "" {
		var p struct {
			Title      string
			Status     string
			Objections []json.RawMessage
		}
		doReq("/v1/proposals/"+thread, "", &p, http.StatusOK)
		fmt.Printf("proposal %q is %s with %d objection(s)\n", p.Title, p.Status, len(p.Objections))
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		var stats map[string]any
		doReq("/v1/admin/scheduler", adminToken(secret), &stats, http.StatusOK)
		fmt.Printf("scheduler: %v\n", stats)
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		countCooldowns(url)
	}

	fmt.Println("✓ all endpoints passed")
}

func checkHealth() {
	id := uuid.NewString()
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/healthz", nil)
	req.Header.Set("X-Request-ID", id)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("healthz: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		log.Fatalf("healthz: want 200 got %d", res.StatusCode)
	}
	if got := res.Header.Get("X-Request-ID"); got != id {
		log.Fatalf("healthz: request id not echoed: %q", got)
	}
}

func adminToken(secret string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "smoke-test",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	return s
}

func countCooldowns(url string) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	keys, err := rdb.Keys(ctx, "pact:cooldown:*").Result()
	if err != nil {
		log.Fatalf("redis keys: %v", err)
	}
	fmt.Printf("redis: %d active click cooldown(s)\n", len(keys))
}

func doReq(path, token string, out any, want int) {
	req, _ := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("GET %s: %v", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("GET %s: want %d got %d", path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("GET %s decode: %v", path, err)
		}
	}
}
