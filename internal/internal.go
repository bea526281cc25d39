package internal

import (
	cid "github.com/ipfs/go-cid"
)

// ManifestVersion is the current Manifest layout.
const ManifestVersion = 1

// Manifest describes a bag of cells kept in a block store. Roots holds the
// representation hashes of the roots in bag order.
type Manifest struct {
	Version   uint64
	Boc       cid.Cid
	Roots     [][]byte
	CellCount uint64
	Flags     uint64
}
