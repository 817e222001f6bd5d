package cursor

type LinkName string

const (
	LinkPrevious LinkName = "previous"
	LinkNext     LinkName = "next"
)

// Link carries the encoded cursor of a neighbouring page
type Link struct {
	Name LinkName `json:"name"`
	Href string   `json:"href"`
}

// Page is one window of a list. Data is never null on the wire.
type Page[T any] struct {
	Data  []T    `json:"data"`
	Start uint   `json:"start"`
	Count int    `json:"count"`
	Links []Link `json:"links,omitempty"`
}

func newPage[T any](data []T, start uint) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{Data: data, Start: start, Count: len(data)}
}

// PageFor wraps the window addressed by c, the next link is only offered when
// the list has more entries
func PageFor[T any](data []T, c Cursor, hasMore bool) Page[T] {
	page := newPage(data, c.Start)
	if previous, exists := c.Previous(); exists {
		page.Links = append(page.Links, Link{LinkPrevious, previous.Encode()})
	}
	if next, exists := c.Next(); exists && hasMore {
		page.Links = append(page.Links, Link{LinkNext, next.Encode()})
	}
	return page
}

func Unpaged[T any](data []T) Page[T] {
	return newPage(data, 0)
}
