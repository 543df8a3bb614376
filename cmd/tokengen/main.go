// Package main provides a CLI tool for issuing signed device tokens that the
// device identity strategy accepts when DEVICE_TOKEN_SECRET is configured.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"boxoffice/internal/ratelimit/identity"
	"boxoffice/pkg/platform/privacy"
)

const defaultTokenTTL = 24 * time.Hour

type tokenOutput struct {
	Token       string            `json:"token"`
	DeviceID    string            `json:"device_id"`
	Fingerprint string            `json:"fingerprint"`
	ExpiresAt   string            `json:"expires_at"`
	Usage       map[string]string `json:"usage"`
}

func main() {
	if err := run(os.Args[1:], os.Getenv, time.Now(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, now time.Time, out io.Writer) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	deviceID := fs.String("device-id", "", "Device ID. Generated if empty.")
	secret := fs.String("secret", "", "Signing secret. Defaults to DEVICE_TOKEN_SECRET.")
	ttl := fs.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key := *secret
	if key == "" {
		key = getenv("DEVICE_TOKEN_SECRET")
	}
	if key == "" {
		return fmt.Errorf("a signing secret is required (-secret or DEVICE_TOKEN_SECRET)")
	}
	if *ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	id := *deviceID
	if id == "" {
		id = uuid.NewString()
	}

	token, err := identity.SignDeviceToken([]byte(key), id, now, *ttl)
	if err != nil {
		return fmt.Errorf("sign device token: %w", err)
	}

	header := getenv("DEVICE_TOKEN_HEADER")
	if header == "" {
		header = identity.DefaultDeviceHeader
	}
	output := tokenOutput{
		Token:       token,
		DeviceID:    id,
		Fingerprint: privacy.FingerprintToken(id),
		ExpiresAt:   now.Add(*ttl).UTC().Format(time.RFC3339),
		Usage: map[string]string{
			"header": header + ": <token>",
		},
	}

	if *jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}
	fmt.Fprintln(out, "Device Token (HS256)")
	fmt.Fprintln(out, "====================")
	fmt.Fprintf(out, "Device ID:   %s\n", output.DeviceID)
	fmt.Fprintf(out, "Fingerprint: %s\n", output.Fingerprint)
	fmt.Fprintf(out, "Expires At:  %s\n", output.ExpiresAt)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Token:")
	fmt.Fprintln(out, output.Token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintf(out, "  curl -H \"%s: <token>\" http://localhost:8080/api/payments\n", header)
	return nil
}
