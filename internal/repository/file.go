package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"forum/crawler/internal/domain"

	"github.com/nao1215/markdown"
	log "github.com/sirupsen/logrus"
)

type fileSink struct {
	outputDir string
	imageDir  string
}

// NewFileSink writes posts as JSON and markdown under outputDir/<board>/posts
// and images under imageDir/<post title>.
func NewFileSink(outputDir, imageDir string) PostSink {
	if imageDir == "" {
		imageDir = filepath.Join(outputDir, "images")
	}
	return &fileSink{outputDir: outputDir, imageDir: imageDir}
}

func (s *fileSink) SavePost(_ context.Context, board string, post *domain.Post) error {
	dir := filepath.Join(s.outputDir, SafeFilename(board), "posts")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create post directory: %w", err)
	}
	base := filepath.Join(dir, postFilename(post))

	data, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode post: %w", err)
	}
	if err := os.WriteFile(base+".json", data, 0o640); err != nil {
		return fmt.Errorf("failed to write post JSON: %w", err)
	}

	if err := os.WriteFile(base+".md", renderPost(post), 0o640); err != nil {
		return fmt.Errorf("failed to write post markdown: %w", err)
	}

	log.Debugf("💾 Saved post %q to %s", post.Title, dir)
	return nil
}

// postFilename is the safe title followed by the post id, so posts sharing a
// title do not overwrite each other.
func postFilename(post *domain.Post) string {
	name := SafeFilename(post.Title)
	if post.ID == "" {
		return name
	}
	return name + "_" + SafeFilename(post.ID)
}

func renderPost(post *domain.Post) []byte {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1(post.Title)
	md.PlainText("")
	md.BulletList(
		"Author: "+post.Author,
		"Posted: "+post.PostedAt,
		fmt.Sprintf("Source: [%s](%s)", post.URL, post.URL),
	)
	md.PlainText("")
	md.PlainText(post.BodyText)

	if len(post.ImageRefs) > 0 {
		md.PlainText("")
		md.H2("Images")
		md.PlainText("")
		links := make([]string, 0, len(post.ImageRefs))
		for i, ref := range post.ImageRefs {
			links = append(links, fmt.Sprintf("![image %d](%s)", i+1, ref))
		}
		md.BulletList(links...)
	}

	_ = md.Build()
	return buf.Bytes()
}

func (s *fileSink) SaveImage(_ context.Context, _ string, postTitle string, data []byte, index int, sourceURL string) error {
	dir := filepath.Join(s.imageDir, SafeFilename(postTitle))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	name := fmt.Sprintf("image_%d%s", index, imageExt(sourceURL))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o640); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	log.Debugf("🖼️ Saved image %s for %q", name, postTitle)
	return nil
}

// imageExt takes the extension from the URL path, defaulting to .jpg.
func imageExt(sourceURL string) string {
	p := sourceURL
	if u, err := url.Parse(sourceURL); err == nil {
		p = u.Path
	}

	ext := strings.ToLower(path.Ext(p))
	if ext == "" || len(ext) > 5 {
		return ".jpg"
	}
	return ext
}
