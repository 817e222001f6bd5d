package boltstore

import (
	bolt "go.etcd.io/bbolt"
)

// Cursor provides additional convenience functions around a bolt.Cursor
type Cursor interface {
	Skip(count uint) Cursor
	Limit(count uint) Cursor
	First() (key, value []byte)
	Next() (key, value []byte)
}

type forwardCursor struct {
	delegate *bolt.Cursor
	limit    int
	skip     int
}

func newForwardCursor(delegate *bolt.Cursor) Cursor {
	return &forwardCursor{delegate: delegate, limit: -1}
}

func (c *forwardCursor) Skip(count uint) Cursor {
	c.skip = int(count)
	return c
}

func (c *forwardCursor) Limit(count uint) Cursor {
	c.limit = int(count)
	return c
}

func (c *forwardCursor) First() (key []byte, value []byte) {
	if c.limit == 0 {
		return nil, nil
	}
	var k, v []byte
	for k, v = c.delegate.First(); c.skip > 0 && k != nil; k, v = c.delegate.Next() {
		c.skip--
	}
	c.limit--
	return k, v
}

func (c *forwardCursor) Next() (key []byte, value []byte) {
	if c.limit == 0 {
		return nil, nil
	}
	k, v := c.delegate.Next()
	for ; c.skip > 0 && k != nil; k, v = c.delegate.Next() {
		c.skip--
	}
	c.limit--
	return k, v
}
