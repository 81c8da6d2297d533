package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"forum/crawler/internal/domain"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// Parser turns fetched pages into listing and post models. Implementations
// must be pure: no network access, safe for concurrent use.
type Parser interface {
	ParseListingPage(html string) (*domain.ListingPage, error)
	ParsePostPage(html string) (*domain.PostPage, error)
}

var postIDRegex = regexp.MustCompile(`/article/\w+/(\w+)|/article/(\w+)`)

type forumParser struct {
	baseURL *url.URL
}

// New returns the default forum parser. Relative links are resolved against baseURL.
func New(baseURL string) (Parser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return &forumParser{baseURL: base}, nil
}

func (p *forumParser) ParseListingPage(html string) (*domain.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", domain.ErrParse, err)
	}

	page := &domain.ListingPage{
		PostRefs: make([]domain.PostRef, 0),
	}

	doc.Find("table.board-list tr").Each(func(i int, row *goquery.Selection) {
		// header rows have no title cell, sticky posts are marked "top"
		if row.Find("td.title").Length() == 0 || row.HasClass("top") {
			return
		}

		link := row.Find("td.title a").First()
		href, exists := link.Attr("href")
		if !exists || strings.TrimSpace(href) == "" {
			return
		}

		postURL := p.resolve(href)
		ref := domain.PostRef{
			ID:       ExtractPostID(postURL),
			URL:      postURL,
			Title:    strings.TrimSpace(link.Text()),
			Author:   strings.TrimSpace(row.Find("td.author").First().Text()),
			PostedAt: strings.TrimSpace(row.Find("td.time").First().Text()),
		}

		page.PostRefs = append(page.PostRefs, ref)
	})

	page.HasNextPage = p.hasNextPage(doc, len(page.PostRefs))

	log.Debugf("Parsed listing page with %d posts (next page: %t)", len(page.PostRefs), page.HasNextPage)
	return page, nil
}

// hasNextPage trusts explicit pagination markup when the page has some;
// otherwise paging continues while pages keep listing posts.
func (p *forumParser) hasNextPage(doc *goquery.Document, posts int) bool {
	pagination := doc.Find(".pagination, .page-main, ul.page")
	if pagination.Length() == 0 {
		return posts > 0
	}

	next := false
	pagination.Find("a").EachWithBreak(func(i int, a *goquery.Selection) bool {
		rel, _ := a.Attr("rel")
		title, _ := a.Attr("title")
		text := strings.TrimSpace(a.Text())
		if rel == "next" || a.HasClass("next") || title == "下一页" || text == "下一页" || text == ">>" {
			next = true
			return false
		}
		return true
	})

	return next
}

func (p *forumParser) ParsePostPage(html string) (*domain.PostPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", domain.ErrParse, err)
	}

	content := doc.Find("div.post-content").First()
	if content.Length() == 0 {
		return nil, fmt.Errorf("%w: post content element not found", domain.ErrParse)
	}

	var images []string
	content.Find("img").Each(func(i int, img *goquery.Selection) {
		src, exists := img.Attr("src")
		if !exists || strings.TrimSpace(src) == "" {
			return
		}
		images = append(images, p.resolve(src))
	})

	page := &domain.PostPage{
		Title:     strings.TrimSpace(doc.Find("h3.post-title").First().Text()),
		Author:    strings.TrimSpace(doc.Find("div.post-meta span.author").First().Text()),
		PostedAt:  strings.TrimSpace(doc.Find("div.post-meta span.time").First().Text()),
		BodyText:  strings.TrimSpace(content.Text()),
		ImageURLs: images,
	}

	log.Debugf("Parsed post %q with %d images", page.Title, len(page.ImageURLs))
	return page, nil
}

// resolve makes href absolute; protocol-relative links default to https.
func (p *forumParser) resolve(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.baseURL.ResolveReference(ref).String()
}

// ExtractPostID returns the article id of a post URL, or "" when the URL has none.
// Both /article/<id> and /article/<board>/<id> forms are recognised.
func ExtractPostID(postURL string) string {
	matches := postIDRegex.FindStringSubmatch(postURL)
	if len(matches) < 3 {
		return ""
	}
	if matches[1] != "" {
		return matches[1]
	}
	return matches[2]
}
