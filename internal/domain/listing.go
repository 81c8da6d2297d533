package domain

// PostRef is one row of a board listing page.
type PostRef struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	PostedAt string `json:"posted_at,omitempty"`
}

// ListingPage is what the parser extracts from one board listing page.
type ListingPage struct {
	PostRefs    []PostRef `json:"post_refs"`
	HasNextPage bool      `json:"has_next_page"`
}

// PostPage is what the parser extracts from one post page.
type PostPage struct {
	Title     string   `json:"title"`
	Author    string   `json:"author,omitempty"`
	PostedAt  string   `json:"posted_at,omitempty"`
	BodyText  string   `json:"body_text"`
	ImageURLs []string `json:"image_urls,omitempty"`
}
