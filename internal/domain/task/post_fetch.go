package task

import "forum/crawler/internal/domain"

type PostFetchTask struct {
	Board string         `json:"board"`
	Ref   domain.PostRef `json:"ref"` // listing row the post was discovered from
}

func (t *PostFetchTask) Kind() Kind {
	return KindPost
}

func (t *PostFetchTask) BoardName() string {
	return t.Board
}

// Fingerprint is keyed by the post id when the listing exposed one, so the
// same post reached through a different URL form is still deduplicated.
func (t *PostFetchTask) Fingerprint() string {
	return PostFingerprint(t.Board, t.Ref)
}

func (t *PostFetchTask) Target() string {
	return t.Ref.URL
}

func (t *PostFetchTask) TaskType() string {
	return "PostFetchTask"
}

func (t *PostFetchTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}

// PostFingerprint returns the fingerprint a PostFetchTask for ref would carry.
func PostFingerprint(board string, ref domain.PostRef) string {
	if ref.ID != "" {
		return fingerprint(KindPost, board, "id", ref.ID)
	}
	return fingerprint(KindPost, board, "url", ref.URL)
}
