package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"wardwatch/internal/manager"
	"wardwatch/internal/middleware"
)

// credential_tool provisions credentials for the wardwatch server: staff
// users (password grant) and API clients (client-credentials grant).
// Secrets are bcrypt-hashed before they touch disk.
func main() {
	kind := flag.String("kind", "user", "Credential kind: user or client")
	id := flag.String("id", "", "Username or client id")
	secret := flag.String("secret", "", "Password/secret (leave blank to type securely)")
	scopes := flag.String("scopes", "read", "Comma-separated scopes (read,write)")
	dataDir := flag.String("data", "data", "Server data directory")
	flag.Parse()

	if strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "id cannot be empty")
		os.Exit(1)
	}

	scopeList, err := parseScopes(*scopes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	pwd, err := resolveSecret(*secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "secret error: %v\n", err)
		os.Exit(1)
	}

	hash, err := middleware.HashSecret(pwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash secret: %v\n", err)
		os.Exit(1)
	}

	switch *kind {
	case "user":
		store := manager.NewUserStore(*dataDir + "/users.json")
		if err := store.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load users.json: %v\n", err)
			os.Exit(1)
		}
		if err := store.Put(*id, hash, scopeList); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved user %s with scopes %s.\n", *id, strings.Join(scopeList, ","))
	case "client":
		store := manager.NewClientStore(*dataDir + "/clients.json")
		if err := store.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load clients.json: %v\n", err)
			os.Exit(1)
		}
		if err := store.Put(*id, hash, scopeList); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save client: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved client %s with scopes %s.\n", *id, strings.Join(scopeList, ","))
	default:
		fmt.Fprintln(os.Stderr, "kind must be 'user' or 'client'")
		os.Exit(1)
	}
}

func parseScopes(raw string) ([]string, error) {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if s != middleware.ScopeRead && s != middleware.ScopeWrite {
			return nil, fmt.Errorf("unknown scope %q", s)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	return out, nil
}

func resolveSecret(provided string) (string, error) {
	if strings.TrimSpace(provided) != "" {
		return provided, nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Secret: ")
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("empty secret")
		}
		return secret, nil
	}
	// Piped input (CI provisioning).
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", fmt.Errorf("empty secret")
	}
	return secret, nil
}
