package task

type ImageFetchTask struct {
	Board     string `json:"board"`
	PostID    string `json:"post_id"`
	PostTitle string `json:"post_title"`
	URL       string `json:"url"`
	Index     int    `json:"index"` // 1-based position inside the post
}

func (t *ImageFetchTask) Kind() Kind {
	return KindImage
}

func (t *ImageFetchTask) BoardName() string {
	return t.Board
}

func (t *ImageFetchTask) Fingerprint() string {
	return fingerprint(KindImage, t.Board, t.PostID, t.URL)
}

func (t *ImageFetchTask) Target() string {
	return t.URL
}

func (t *ImageFetchTask) TaskType() string {
	return "ImageFetchTask"
}

func (t *ImageFetchTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
