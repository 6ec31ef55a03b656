package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nft-gate/backend/internal/auth"
	"github.com/nft-gate/backend/internal/config"
	"github.com/nft-gate/backend/internal/rbac"
	"github.com/spf13/pflag"
)

// Mints a service token for the bot or an operator dashboard.
func main() {
	subject := pflag.String("subject", "discord-bot", "token subject")
	scopes := pflag.StringSlice("scope", []string{rbac.ScopeBot}, "scopes to grant (bot, admin)")
	ttl := pflag.Duration("ttl", 0, "token lifetime, defaults to JWT_EXPIRATION_HOURS")
	pflag.Parse()

	cfg := config.Load()

	for _, s := range *scopes {
		if _, ok := rbac.ScopePermissions[s]; !ok {
			fmt.Fprintf(os.Stderr, "unknown scope %q\n", s)
			os.Exit(2)
		}
	}

	expiration := *ttl
	if expiration <= 0 {
		expiration = cfg.JWTExpiration
	}

	tok, err := auth.GenerateJWT(cfg.JWTSecret, *subject, *scopes, expiration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(expiration).UTC().Format(time.RFC3339))
}
