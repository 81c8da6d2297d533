package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"forum/crawler/internal/domain"
)

// PostSink persists crawled posts and their images.
type PostSink interface {
	SavePost(ctx context.Context, board string, post *domain.Post) error
	// SaveImage stores the index-th (1-based) image of the post titled postTitle.
	SaveImage(ctx context.Context, board, postTitle string, data []byte, index int, sourceURL string) error
}

const maxFilenameRunes = 100

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SafeFilename turns a post title into something usable as a file or directory name.
func SafeFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, "_")
	name = strings.Trim(name, " .")
	if name == "" {
		return "untitled"
	}

	runes := []rune(name)
	if len(runes) > maxFilenameRunes {
		name = string(runes[:maxFilenameRunes])
	}
	return name
}

type multiSink struct {
	sinks []PostSink
}

// NewMultiSink writes to every sink in order. All sinks are attempted; the
// errors of those that failed are joined.
func NewMultiSink(sinks ...PostSink) PostSink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &multiSink{sinks: sinks}
}

func (m *multiSink) SavePost(ctx context.Context, board string, post *domain.Post) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.SavePost(ctx, board, post); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiSink) SaveImage(ctx context.Context, board, postTitle string, data []byte, index int, sourceURL string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.SaveImage(ctx, board, postTitle, data, index, sourceURL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
