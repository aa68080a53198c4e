package api

import (
	"math/big"
)

// StorageInfo is a storage aggregate in bytes. Values are arbitrary
// precision and encoded as plain JSON integers.
type StorageInfo struct {
	Total           *big.Int `json:"total"`
	Free            *big.Int `json:"free"`
	UnavailableFree *big.Int `json:"unavailable_free"`
	Alloc           *big.Int `json:"alloc"`
	Real            *big.Int `json:"real"`
	Used            *big.Int `json:"used"`
}

// NewStorageInfo returns a StorageInfo with all values zero
func NewStorageInfo() StorageInfo {
	return StorageInfo{
		Total:           new(big.Int),
		Free:            new(big.Int),
		UnavailableFree: new(big.Int),
		Alloc:           new(big.Int),
		Real:            new(big.Int),
		Used:            new(big.Int),
	}
}

// Add adds o to s in place
func (s StorageInfo) Add(o StorageInfo) {
	add := func(dst, src *big.Int) {
		if dst != nil && src != nil {
			dst.Add(dst, src)
		}
	}
	add(s.Total, o.Total)
	add(s.Free, o.Free)
	add(s.UnavailableFree, o.UnavailableFree)
	add(s.Alloc, o.Alloc)
	add(s.Real, o.Real)
	add(s.Used, o.Used)
}

// NodesInfo counts the nodes of an aggregate
type NodesInfo struct {
	Count     int `json:"count"`
	Online    int `json:"online"`
	HasIssues int `json:"has_issues"`
}

// TokenReply carries a session token
type TokenReply struct {
	Token string `json:"token"`
}

// Undeletable reasons
const (
	UndeletableSystemEntity = "SYSTEM_ENTITY"
	UndeletableNotEmpty     = "NOT_EMPTY"
	UndeletableInUse        = "IN_USE"
)
