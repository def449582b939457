package com

import "github.com/rs/xid"

// Uid is a relay-assigned endpoint identifier, sortable by creation time.
type Uid struct {
	xid.ID
}

func NewUid() Uid { return Uid{xid.New()} }

// Short gives a compact form for log tags.
func (u Uid) Short() string {
	s := u.String()
	return s[:3] + "." + s[len(s)-3:]
}
