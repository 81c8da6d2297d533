package domain

import (
	"fmt"
	"strings"
)

// BoardTarget is a crawl root: one forum board and the caps applied to it.
// A zero MaxPages or MaxPosts means the board is walked without that cap.
type BoardTarget struct {
	Name       string `json:"name" mapstructure:"name"`
	ListingURL string `json:"url" mapstructure:"url"`
	MaxPages   int    `json:"max_pages" mapstructure:"max_pages"`
	MaxPosts   int    `json:"max_posts" mapstructure:"max_posts"`
}

func (b BoardTarget) String() string {
	return b.Name
}

// Validate checks the target the same way the board config loader does.
func (b BoardTarget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("board name is empty")
	}
	if !strings.HasPrefix(b.ListingURL, "http://") && !strings.HasPrefix(b.ListingURL, "https://") {
		return fmt.Errorf("invalid board URL for %s: %s", b.Name, b.ListingURL)
	}
	if b.MaxPages < 0 {
		return fmt.Errorf("max_pages must not be negative for board %s", b.Name)
	}
	if b.MaxPosts < 0 {
		return fmt.Errorf("max_posts must not be negative for board %s", b.Name)
	}
	return nil
}

// PageURL returns the listing URL of the given 1-based page.
func (b BoardTarget) PageURL(page int) string {
	sep := "?"
	if strings.Contains(b.ListingURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sp=%d", b.ListingURL, sep, page)
}

// PageCapReached reports whether page is the last page allowed by MaxPages.
func (b BoardTarget) PageCapReached(page int) bool {
	return b.MaxPages > 0 && page >= b.MaxPages
}

// PostCapReached reports whether emitted posts already exhaust MaxPosts.
func (b BoardTarget) PostCapReached(emitted int) bool {
	return b.MaxPosts > 0 && emitted >= b.MaxPosts
}
