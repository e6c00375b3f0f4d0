package models

import (
	"encoding/json"
	"fmt"
)

// LastPageOffset is sent as next_offset when there is no further page
const LastPageOffset = -1

// Page is one page of a keyset-paginated listing.
// NextOffset is the opaque token of the following page, or nil on the last page.
// On the wire it is next_offset, with LastPageOffset standing in for nil.
type Page[T any] struct {
	Items      []T
	NextOffset *string
}

type pageJSON[T any] struct {
	Items      []T             `json:"items"`
	NextOffset json.RawMessage `json:"next_offset"`
}

func (p Page[T]) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	next := json.RawMessage(fmt.Sprint(LastPageOffset))
	if p.NextOffset != nil {
		raw, err := json.Marshal(*p.NextOffset)
		if err != nil {
			return nil, err
		}
		next = raw
	}
	return json.Marshal(pageJSON[T]{Items: items, NextOffset: next})
}

func (p *Page[T]) UnmarshalJSON(data []byte) error {
	var raw pageJSON[T]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Items = raw.Items
	p.NextOffset = nil

	if len(raw.NextOffset) == 0 || string(raw.NextOffset) == "null" {
		return nil
	}
	var token string
	if err := json.Unmarshal(raw.NextOffset, &token); err == nil {
		p.NextOffset = &token
		return nil
	}
	var sentinel int
	if err := json.Unmarshal(raw.NextOffset, &sentinel); err != nil || sentinel != LastPageOffset {
		return fmt.Errorf("invalid next_offset %s", raw.NextOffset)
	}
	return nil
}
