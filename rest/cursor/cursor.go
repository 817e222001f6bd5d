package cursor

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
)

// Cursor addresses a window of a list, it travels base64 encoded in the c
// query parameter
type Cursor struct {
	Start    uint
	PageSize uint
}

const (
	DefaultPageSize uint = 20
	MaxPageSize     uint = 200
)

// DecodeFromRequest reads the cursor from the c parameter, the p parameter
// overrides its page size
func DecodeFromRequest(r *http.Request) Cursor {
	cursor := DecodeFromString(r.URL.Query().Get("c"), DefaultPageSize)
	if pageSizeStr := r.URL.Query().Get("p"); pageSizeStr != "" {
		if pageSize, err := strconv.ParseUint(pageSizeStr, 10, 0); err == nil && pageSize > 0 {
			cursor.PageSize = uint(pageSize)
		}
	}
	if cursor.PageSize > MaxPageSize {
		cursor.PageSize = MaxPageSize
	}
	return cursor
}

func DecodeFromString(encoded string, defaultPageSize uint) Cursor {
	cursor := Cursor{PageSize: defaultPageSize}
	if encoded == "" {
		return cursor
	}
	asJSON, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return cursor
	}
	if err := json.Unmarshal(asJSON, &cursor); err != nil {
		return Cursor{PageSize: defaultPageSize}
	}
	if cursor.PageSize == 0 {
		cursor.PageSize = defaultPageSize
	}
	return cursor
}

func (c Cursor) Encode() string {
	asJSON, err := json.Marshal(&c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(asJSON))
}

func (c Cursor) Previous() (Cursor, bool) {
	if c.Start == 0 {
		return Cursor{}, false
	}
	if c.Start < c.PageSize {
		return Cursor{Start: 0, PageSize: c.PageSize}, true
	}
	return Cursor{Start: c.Start - c.PageSize, PageSize: c.PageSize}, true
}

func (c Cursor) Next() (Cursor, bool) {
	return Cursor{Start: c.Start + c.PageSize, PageSize: c.PageSize}, true
}
