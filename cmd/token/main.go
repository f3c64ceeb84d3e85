package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"retailgate.org/internal/auth"
	"retailgate.org/internal/config"
	"retailgate.org/internal/obs"
)

// token mints a bearer token signed with the service secret. Operators use it
// for smoke checks against a running api; end users get tokens from the
// identity provider.
func main() {
	var (
		user   = flag.String("user", "", "user id (sub claim)")
		role   = flag.String("role", "manager", "role claim")
		branch = flag.String("branch", "", "branch the user acts from")
		perms  = flag.StringSlice("perm", nil, "permission to embed; repeatable")
		ttl    = flag.Duration("ttl", 15*time.Minute, "token lifetime")
	)
	flag.Parse()

	logger := obs.Logger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	verifier, err := auth.NewVerifier(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		logger.Fatal("build verifier: set RETAILGATE_AUTH_SECRET", zap.Error(err))
	}
	signed, err := verifier.GenerateToken(*user, *role, *branch, *perms, *ttl)
	if err != nil {
		logger.Fatal("mint token", zap.Error(err))
	}
	fmt.Fprintln(os.Stdout, signed)
}
