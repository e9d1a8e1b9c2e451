// Package patch computes and applies structural diffs between note
// revisions. Ops are whole-field replacements for title/content plus
// add/remove of individual tag ids; there is no byte- or line-range diffing.
package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
)

type Kind string

const (
	KindReplace Kind = "replace"
	KindAdd     Kind = "add"
	KindRemove  Kind = "remove"
)

// Op is one diff operation. Paths follow JSON-Pointer style:
// "/title", "/content", or "/tags/<tag-id>".
type Op struct {
	Kind  Kind   `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value,omitempty"`
}

const (
	pathTitle   = "/title"
	pathContent = "/content"
	tagPrefix   = "/tags/"
)

// ApplyError reports that the ops do not fit the base document, i.e. the
// base has diverged from what the diff was computed against. Callers treat
// this exactly like a version conflict.
type ApplyError struct {
	Path   string
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch does not apply at %s: %s", e.Path, e.Reason)
}

// IsApplyError reports whether err is (or wraps) an ApplyError.
func IsApplyError(err error) bool {
	var ae *ApplyError
	return errors.As(err, &ae)
}

// Diff computes the ops that transform old into new. Applying the result to
// old always reproduces new (tag order aside; tags are a set).
func Diff(old, new note.Note) []Op {
	var ops []Op
	if old.Title != new.Title {
		ops = append(ops, Op{Kind: KindReplace, Path: pathTitle, Value: new.Title})
	}
	if old.Content != new.Content {
		ops = append(ops, Op{Kind: KindReplace, Path: pathContent, Value: new.Content})
	}
	for _, t := range old.Tags {
		if !new.HasTag(t) {
			ops = append(ops, Op{Kind: KindRemove, Path: tagPrefix + t})
		}
	}
	for _, t := range new.Tags {
		if !old.HasTag(t) {
			ops = append(ops, Op{Kind: KindAdd, Path: tagPrefix + t})
		}
	}
	return ops
}

// Apply is pure: it never mutates base and the same inputs always produce
// the same output. A structurally impossible op (unknown path, removing an
// absent tag, adding a duplicate) returns an ApplyError.
func Apply(base note.Note, ops []Op) (note.Note, error) {
	out := base
	out.Tags = append([]string(nil), base.Tags...)
	for _, op := range ops {
		switch {
		case op.Path == pathTitle:
			v, err := fieldValue(op)
			if err != nil {
				return note.Note{}, err
			}
			out.Title = v
		case op.Path == pathContent:
			v, err := fieldValue(op)
			if err != nil {
				return note.Note{}, err
			}
			out.Content = v
		case strings.HasPrefix(op.Path, tagPrefix):
			id := strings.TrimPrefix(op.Path, tagPrefix)
			if id == "" {
				return note.Note{}, &ApplyError{Path: op.Path, Reason: "empty tag id"}
			}
			switch op.Kind {
			case KindAdd:
				if containsTag(out.Tags, id) {
					return note.Note{}, &ApplyError{Path: op.Path, Reason: "tag already present"}
				}
				out.Tags = append(out.Tags, id)
			case KindRemove:
				idx := indexOfTag(out.Tags, id)
				if idx < 0 {
					return note.Note{}, &ApplyError{Path: op.Path, Reason: "tag not present"}
				}
				out.Tags = append(out.Tags[:idx], out.Tags[idx+1:]...)
			default:
				return note.Note{}, &ApplyError{Path: op.Path, Reason: fmt.Sprintf("unsupported op %q on tag path", op.Kind)}
			}
		default:
			return note.Note{}, &ApplyError{Path: op.Path, Reason: "unknown path"}
		}
	}
	return out, nil
}

func fieldValue(op Op) (string, error) {
	switch op.Kind {
	case KindReplace, KindAdd:
		return op.Value, nil
	case KindRemove:
		return "", nil
	default:
		return "", &ApplyError{Path: op.Path, Reason: fmt.Sprintf("unknown op %q", op.Kind)}
	}
}

func containsTag(tags []string, id string) bool {
	return indexOfTag(tags, id) >= 0
}

func indexOfTag(tags []string, id string) int {
	for i, t := range tags {
		if t == id {
			return i
		}
	}
	return -1
}
