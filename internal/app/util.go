package app

import (
	"regexp"
	"strings"
	"time"
)

// cycleTimeout bounds the network calls of one poll pass.
const cycleTimeout = 30 * time.Second

// shortID truncates long IDs for readable logging.
func shortID(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:6] + "…" + s[len(s)-6:]
}

// nz returns fallback if s is empty or whitespace-only.
func nz(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

var walletAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// isWalletAddress reports whether s looks like a proxy wallet address.
func isWalletAddress(s string) bool {
	return walletAddressRe.MatchString(strings.TrimSpace(s))
}

// joinParagraphs joins message blocks with a blank line between them.
func joinParagraphs(blocks []string) string {
	return strings.Join(blocks, "\n\n")
}

// difference returns elements in a that are not in b.
func difference(a, b []string) []string {
	bSet := make(map[string]struct{}, len(b))
	for _, v := range b {
		bSet[v] = struct{}{}
	}

	var result []string
	for _, v := range a {
		if _, exists := bSet[v]; !exists {
			result = append(result, v)
		}
	}
	return result
}
