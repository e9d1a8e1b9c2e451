package note

import "time"

// Note is the persistent note model. Version is the optimistic-lock token:
// every accepted mutation increments it by exactly one, and a write is
// accepted only when the caller presents the currently stored value.
type Note struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	Tags      []string  `json:"tags" bson:"tags"`
	Version   int64     `json:"version" bson:"version"`
	IsDeleted bool      `json:"isDeleted" bson:"isDeleted"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ListItem is the trimmed representation returned by list endpoints: the
// content is reduced to a short preview.
type ListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const previewRunes = 100

// Clone returns a deep copy so mutators can work on a scratch value without
// aliasing the caller's tag slice.
func (n *Note) Clone() *Note {
	cp := *n
	if n.Tags != nil {
		cp.Tags = append([]string(nil), n.Tags...)
	}
	return &cp
}

func (n *Note) HasTag(id string) bool {
	for _, t := range n.Tags {
		if t == id {
			return true
		}
	}
	return false
}

// Preview returns the first 100 runes of content for list views.
func (n *Note) Preview() string {
	r := []rune(n.Content)
	if len(r) <= previewRunes {
		return n.Content
	}
	return string(r[:previewRunes])
}

func (n *Note) ListItem() ListItem {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return ListItem{
		ID:        n.ID,
		Title:     n.Title,
		Preview:   n.Preview(),
		Tags:      tags,
		UpdatedAt: n.UpdatedAt,
	}
}
