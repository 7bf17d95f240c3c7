// Command dashboard-token prints a signed observer token for the dashboard endpoints. The
// secret is read from the dashboard configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"parkpay/backend/services/dashboard-service/internal/config"
	"parkpay/backend/services/dashboard-service/internal/token"
)

func main() {
	flags := pflag.NewFlagSet("dashboard-token", pflag.ContinueOnError)
	subject := flags.StringP("subject", "s", "", "operator the token is issued to")
	ttl := flags.Duration("ttl", token.DefaultTTL, "token lifetime")
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "dashboard-token: auth.jwtSecret is not configured, the dashboard is unauthenticated")
		os.Exit(1)
	}

	signed, err := token.NewService(cfg.Auth.JWTSecret, *ttl).Issue(*subject)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
