// Command devtoken mints a bearer token for local testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/spec-kit/ticket-inventory/internal/auth"
	"github.com/spec-kit/ticket-inventory/internal/config"
	"github.com/spec-kit/ticket-inventory/internal/domain"
)

func main() {
	subject := flag.String("sub", "dev-user", "subject id carried in the token")
	role := flag.String("role", string(domain.RoleAttendee), "ATTENDEE, ORGANIZER, STAFF or ADMIN")
	ttl := flag.Int("ttl", 0, "lifetime in minutes; defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	r := domain.Role(*role)
	if !r.Valid() {
		log.Fatalf("unknown role %q", *role)
	}
	minutes := cfg.Auth.AccessTokenTTLMinutes
	if *ttl > 0 {
		minutes = *ttl
	}

	token, meta, err := auth.NewTokenManager(cfg.Auth.JWTSecret, minutes).GenerateToken(*subject, r)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Fprintf(os.Stderr, "expires at %s\n", meta.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Println(token)
}
