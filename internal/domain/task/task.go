package task

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	KindPage  Kind = "page"
	KindPost  Kind = "post"
	KindImage Kind = "image"
)

// Task is one unit of fetch work. The fingerprint is the dedup and resume key.
type Task interface {
	Kind() Kind
	BoardName() string
	Fingerprint() string
	Target() string
	TaskType() string
	TaskValue() ([]byte, error)
}

// DefaultTaskValue provides a common implementation for TaskValue
func DefaultTaskValue(task interface{}) ([]byte, error) {
	return json.Marshal(task)
}

func UnmarshalTask[T Task](task []byte) (T, error) {
	var t T
	err := json.Unmarshal(task, &t)
	return t, err
}

// Decode rebuilds a unit from its TaskType and TaskValue.
func Decode(taskType string, data []byte) (Task, error) {
	switch taskType {
	case "PageFetchTask":
		return UnmarshalTask[*PageFetchTask](data)
	case "PostFetchTask":
		return UnmarshalTask[*PostFetchTask](data)
	case "ImageFetchTask":
		return UnmarshalTask[*ImageFetchTask](data)
	default:
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
}

// fingerprint hashes the variant tag together with the identifying fields.
// Fields are joined with a separator that cannot appear in URLs unescaped.
func fingerprint(kind Kind, fields ...string) string {
	key := string(kind) + "\x00" + strings.Join(fields, "\x00")
	return fmt.Sprintf("%s:%016x", kind, xxhash.Sum64String(key))
}

// Resumable reports whether the unit's completion is recorded in the resume
// store. Listing pages are re-read on every run so unfinished posts can be
// rediscovered; everything below them is skipped once done.
func Resumable(t Task) bool {
	return t.Kind() != KindPage
}
