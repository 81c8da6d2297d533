package task

import "strconv"

type PageFetchTask struct {
	Board     string `json:"board"`
	PageIndex int    `json:"page_index"` // 1-based
	URL       string `json:"url"`
}

func (t *PageFetchTask) Kind() Kind {
	return KindPage
}

func (t *PageFetchTask) BoardName() string {
	return t.Board
}

func (t *PageFetchTask) Fingerprint() string {
	return fingerprint(KindPage, t.Board, strconv.Itoa(t.PageIndex), t.URL)
}

func (t *PageFetchTask) Target() string {
	return t.URL
}

func (t *PageFetchTask) TaskType() string {
	return "PageFetchTask"
}

func (t *PageFetchTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
