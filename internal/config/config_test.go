package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"forum/crawler/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Crawler: CrawlerConfig{
			BaseURL:            "https://www.newsmth.net",
			MaxConcurrentTasks: 5,
			MaxRetries:         3,
			RetryDelay:         time.Second,
			Timeout:            30 * time.Second,
			Boards: []domain.BoardTarget{
				{Name: "OurEstate", ListingURL: "https://www.newsmth.net/nForum/board/OurEstate"},
			},
		},
		State: StateConfig{Backend: StateBackendFile},
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
crawler:
  output_dir: ./out
  max_concurrent_tasks: 8
  retry_delay: 500ms
  boards:
    - name: OurEstate
      url: https://www.newsmth.net/nForum/board/OurEstate
      max_pages: 2
      max_posts: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Crawler.MaxConcurrentTasks != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Crawler.MaxConcurrentTasks)
	}
	if cfg.Crawler.RetryDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms retry delay, got %s", cfg.Crawler.RetryDelay)
	}
	if cfg.Crawler.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Crawler.MaxRetries)
	}
	if cfg.Crawler.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.Crawler.Timeout)
	}
	if !cfg.Crawler.SaveImages {
		t.Error("expected save_images to default to true")
	}
	if got, want := cfg.Crawler.ImageDir, filepath.Join("out", "images"); got != want {
		t.Errorf("expected image dir %q, got %q", want, got)
	}
	if got, want := cfg.State.Dir, filepath.Join("out", ".state"); got != want {
		t.Errorf("expected state dir %q, got %q", want, got)
	}
	if len(cfg.Crawler.Boards) != 1 {
		t.Fatalf("expected 1 board, got %d", len(cfg.Crawler.Boards))
	}
	board := cfg.Crawler.Boards[0]
	if board.Name != "OurEstate" || board.MaxPages != 2 || board.MaxPosts != 3 {
		t.Errorf("unexpected board: %+v", board)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad base url", func(c *Config) { c.Crawler.BaseURL = "ftp://x" }, ErrInvalidBaseURL},
		{"zero concurrency", func(c *Config) { c.Crawler.MaxConcurrentTasks = 0 }, ErrInvalidConcurrency},
		{"negative retries", func(c *Config) { c.Crawler.MaxRetries = -1 }, ErrInvalidRetries},
		{"negative delay", func(c *Config) { c.Crawler.RetryDelay = -time.Second }, ErrInvalidRetryDelay},
		{"zero timeout", func(c *Config) { c.Crawler.Timeout = 0 }, ErrInvalidTimeout},
		{"no boards", func(c *Config) { c.Crawler.Boards = nil }, ErrNoBoards},
		{"duplicate board", func(c *Config) {
			c.Crawler.Boards = append(c.Crawler.Boards, c.Crawler.Boards[0])
		}, ErrDuplicateBoard},
		{"unknown backend", func(c *Config) { c.State.Backend = "etcd" }, ErrUnknownStateBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateRejectsInvalidBoard(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Crawler.Boards[0].ListingURL = "newsmth.net/board"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for board without scheme")
	}
}

func TestDefaultStateDir(t *testing.T) {
	t.Parallel()

	if got := DefaultStateDir("data"); got != filepath.Join("data", ".state") {
		t.Errorf("unexpected state dir: %s", got)
	}
	if got := DefaultStateDir(""); filepath.Base(got) != AppName {
		t.Errorf("expected XDG dir ending in %s, got %s", AppName, got)
	}
}
