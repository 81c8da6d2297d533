package domain

import "time"

// Post is the terminal artifact of a post fetch, handed to the persistence sink.
type Post struct {
	Board     string    `json:"board"`
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	PostedAt  string    `json:"date"`
	BodyText  string    `json:"content"`
	ImageRefs []string  `json:"images,omitempty"`
	CrawledAt time.Time `json:"crawl_time"`
}

// NewPost merges the post page with the listing row it was discovered from.
// Listing values are used only where the post page left a field empty.
func NewPost(board string, ref PostRef, page *PostPage) *Post {
	post := &Post{
		Board:     board,
		ID:        ref.ID,
		URL:       ref.URL,
		Title:     page.Title,
		Author:    page.Author,
		PostedAt:  page.PostedAt,
		BodyText:  page.BodyText,
		ImageRefs: page.ImageURLs,
		CrawledAt: time.Now().UTC(),
	}

	if post.Title == "" {
		post.Title = ref.Title
	}
	if post.Author == "" {
		post.Author = ref.Author
	}
	if post.PostedAt == "" {
		post.PostedAt = ref.PostedAt
	}

	return post
}
