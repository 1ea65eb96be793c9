package cmd

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// parseServeAddr resolves the listen address for `docent serve`. Both a
// bare positional argument and an -addr/--addr flag are accepted:
//   - docent serve :8080
//   - docent serve --addr :8080
//   - docent serve -addr :8080
//
// The flag wins when both appear. defaultAddr comes from configuration.
func parseServeAddr(defaultAddr string) (string, error) {
	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	// A leading non-flag argument is the address.
	fallback := defaultAddr
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		fallback = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addr := fs.String("addr", fallback, "listen address (host:port)")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parsing serve flags: %w", err)
	}

	if err := validateAddr(*addr); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", *addr, err)
	}
	return *addr, nil
}

// validateAddr checks that addr is a usable host:port listen address.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	if err := validatePort(port); err != nil {
		return err
	}

	// Anything that is not an IP is taken for a resolvable name, as long
	// as it carries no whitespace.
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return nil
	}
	if strings.ContainsAny(host, " \t\n") {
		return fmt.Errorf("invalid host: %s", host)
	}
	return nil
}

func validatePort(port string) error {
	if port == "" {
		return errors.New("port is required")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("port must be 0-65535 (0 picks a free port), got %d", n)
	}
	return nil
}
