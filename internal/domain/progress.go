package domain

type WalkerState string

func (s WalkerState) String() string {
	return string(s)
}

const (
	WalkerStart    WalkerState = "start"
	WalkerPagingUp WalkerState = "paging_up"
	WalkerDraining WalkerState = "draining"
	WalkerDone     WalkerState = "done"
	WalkerStopped  WalkerState = "stopped"
)

// CrawlProgress holds the per-board counters of a session.
type CrawlProgress struct {
	Board         string      `json:"board"`
	State         WalkerState `json:"state"`
	PagesEmitted  int         `json:"pages_emitted"`
	PagesFetched  int         `json:"pages_fetched"`
	PostsEmitted  int         `json:"posts_emitted"`
	PostsFetched  int         `json:"posts_fetched"`
	PostsSkipped  int         `json:"posts_skipped"`
	ImagesFetched int         `json:"images_fetched"`
	Failed        int         `json:"failed"`
}
