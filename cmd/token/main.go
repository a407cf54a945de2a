// Command token issues a signed API token for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/capitalize-ai/lead-qualifier/internal/config"
	"github.com/capitalize-ai/lead-qualifier/internal/middleware"
)

func main() {
	cfg := config.Load()

	subject := flag.String("sub", "dev-user", "token subject")
	tenant := flag.String("tenant", middleware.DefaultTenant, "tenant ID")
	scopes := flag.String("scopes", "", "comma separated scopes")
	ttl := flag.Duration("ttl", cfg.JWTExpiration, "token lifetime")
	flag.Parse()

	var scopeList []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopeList = append(scopeList, s)
		}
	}

	token, err := middleware.IssueToken(cfg.JWTSecret, *subject, *tenant, scopeList, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
