// Command devtoken mints a bearer token for local testing. It reads the same
// configuration as the server, so JWT_SECRET and AUTH_ISSUER must match.
//
//	devtoken --role driver --sub drv-ada --name "Ada"
//	devtoken --role passenger --sub pax-1 --email grace@example.com --ttl 1h
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/limoline/dispatch/internal/auth"
	"github.com/limoline/dispatch/internal/config"
	"github.com/limoline/dispatch/internal/domain/entities"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a YAML config file")
		role       = pflag.StringP("role", "r", "staff", "staff, driver or passenger")
		subject    = pflag.StringP("sub", "s", "", "caller id; for drivers the id assigned on bookings")
		email      = pflag.String("email", "", "caller email, used to match passenger bookings")
		name       = pflag.String("name", "", "display name")
		ttl        = pflag.Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")
	)
	pflag.Parse()

	if err := run(*configPath, *role, *subject, *email, *name, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, roleName, subject, email, name string, ttl time.Duration) error {
	cfg, err := config.LoadWithKoanf(configPath)
	if err != nil {
		return err
	}

	role, ok := entities.ParseRole(roleName)
	if !ok {
		return fmt.Errorf("unknown role %q", roleName)
	}
	if subject == "" {
		return fmt.Errorf("--sub is required")
	}

	tokens, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	token, err := tokens.GenerateTokenWithTTL(entities.Caller{ID: subject, Role: role, Email: email, Name: name}, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
