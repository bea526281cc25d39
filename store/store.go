// Package store keeps bags of cells in an IPLD block store. The serialized
// bag is stored as a raw block and described by a CBOR manifest listing its
// roots.
package store

import (
	"context"
	"errors"

	block "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	boc "github.com/tonkit/go-boc"
	"github.com/tonkit/go-boc/cell"
	"github.com/tonkit/go-boc/internal"
)

var log = logging.Logger("boc/store")

var (
	ErrManifestVersion = errors.New("unsupported manifest version")
	ErrBlockMismatch   = errors.New("block does not match its cid")
	ErrRootMismatch    = errors.New("decoded roots do not match the manifest")
)

// Blocks is the block store the bags live in.
type Blocks interface {
	Get(context.Context, cid.Cid) (block.Block, error)
	Put(context.Context, block.Block) error
}

// Store reads and writes bags of cells.
type Store struct {
	bs   Blocks
	ipld cbor.IpldStore
}

func New(bs Blocks) *Store {
	return &Store{
		bs:   bs,
		ipld: cbor.NewCborStore(bs),
	}
}

// Put encodes the bag of roots, stores it and returns the manifest cid.
func (s *Store) Put(ctx context.Context, roots []cell.Cell, opts ...boc.EncodeOption) (cid.Cid, error) {
	data, err := boc.Encode(roots, opts...)
	if err != nil {
		return cid.Undef, xerrors.Errorf("encoding bag: %w", err)
	}
	bag, err := boc.NewBag(boc.NewBytesSource(data), boc.CheckCRC32C(false))
	if err != nil {
		return cid.Undef, xerrors.Errorf("reading encoded bag: %w", err)
	}
	h := bag.Header()

	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	bocCid := cid.NewCidV1(cid.Raw, hash)
	blk, err := block.NewBlockWithCid(data, bocCid)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.bs.Put(ctx, blk); err != nil {
		return cid.Undef, xerrors.Errorf("storing bag %s: %w", bocCid, err)
	}

	m := &internal.Manifest{
		Version:   internal.ManifestVersion,
		Boc:       bocCid,
		Roots:     make([][]byte, len(roots)),
		CellCount: uint64(h.CellCount),
		Flags:     uint64(h.Flags()),
	}
	for i, r := range roots {
		rh := cell.ReprHash(r)
		m.Roots[i] = rh[:]
	}
	c, err := s.ipld.Put(ctx, m)
	if err != nil {
		return cid.Undef, xerrors.Errorf("storing manifest: %w", err)
	}
	log.Debugw("stored bag", "manifest", c, "boc", bocCid, "cells", h.CellCount, "size", len(data))
	return c, nil
}

// Manifest loads the manifest stored under c.
func (s *Store) Manifest(ctx context.Context, c cid.Cid) (*internal.Manifest, error) {
	var m internal.Manifest
	if err := s.ipld.Get(ctx, c, &m); err != nil {
		return nil, xerrors.Errorf("loading manifest %s: %w", c, err)
	}
	if m.Version != internal.ManifestVersion {
		return nil, xerrors.Errorf("manifest %s has version %d: %w", c, m.Version, ErrManifestVersion)
	}
	return &m, nil
}

// Open loads the bag under the manifest c without decoding any cell.
func (s *Store) Open(ctx context.Context, c cid.Cid, opts ...boc.DecodeOption) (*boc.Bag, *internal.Manifest, error) {
	m, err := s.Manifest(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	blk, err := s.bs.Get(ctx, m.Boc)
	if err != nil {
		return nil, nil, xerrors.Errorf("loading bag %s: %w", m.Boc, err)
	}
	sum, err := m.Boc.Prefix().Sum(blk.RawData())
	if err != nil {
		return nil, nil, err
	}
	if !sum.Equals(m.Boc) {
		return nil, nil, xerrors.Errorf("bag %s hashes to %s: %w", m.Boc, sum, ErrBlockMismatch)
	}
	bag, err := boc.NewBag(boc.NewBytesSource(blk.RawData()), opts...)
	if err != nil {
		return nil, nil, xerrors.Errorf("opening bag %s: %w", m.Boc, err)
	}
	if bag.RootCount() != len(m.Roots) {
		return nil, nil, xerrors.Errorf("bag has %d roots, manifest %d: %w", bag.RootCount(), len(m.Roots), ErrRootMismatch)
	}
	return bag, m, nil
}

// Get decodes the roots of the bag under the manifest c and checks them
// against the manifest.
func (s *Store) Get(ctx context.Context, c cid.Cid, opts ...boc.DecodeOption) ([]cell.Cell, error) {
	bag, m, err := s.Open(ctx, c, opts...)
	if err != nil {
		return nil, err
	}
	roots, err := bag.Roots()
	if err != nil {
		return nil, xerrors.Errorf("decoding bag %s: %w", m.Boc, err)
	}
	for i, r := range roots {
		rh := cell.ReprHash(r)
		if string(rh[:]) != string(m.Roots[i]) {
			return nil, xerrors.Errorf("root %d is %s: %w", i, rh, ErrRootMismatch)
		}
	}
	log.Debugw("loaded bag", "manifest", c, "roots", len(roots))
	return roots, nil
}

// GetMany runs Get for every cid with up to workers concurrent loads.
func (s *Store) GetMany(ctx context.Context, cids []cid.Cid, workers int, opts ...boc.DecodeOption) ([][]cell.Cell, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([][]cell.Cell, len(cids))
	sem := make(chan struct{}, workers)
	grp, ctx := errgroup.WithContext(ctx)
	for i, c := range cids {
		i, c := i, c
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			if err := grp.Wait(); err != nil {
				return nil, err
			}
			return nil, ctx.Err()
		}
		grp.Go(func() error {
			defer func() { <-sem }()
			roots, err := s.Get(ctx, c, opts...)
			if err != nil {
				return err
			}
			out[i] = roots
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CellCid addresses a cell by its representation hash.
func CellCid(h cell.Hash) (cid.Cid, error) {
	enc, err := mh.Encode(h[:], mh.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh.Multihash(enc)), nil
}

// HashFromCid is the inverse of CellCid.
func HashFromCid(c cid.Cid) (cell.Hash, error) {
	var h cell.Hash
	dec, err := mh.Decode(c.Hash())
	if err != nil {
		return h, err
	}
	if dec.Code != mh.SHA2_256 || len(dec.Digest) != cell.HashSize {
		return h, xerrors.Errorf("cid %s is not a cell hash", c)
	}
	copy(h[:], dec.Digest)
	return h, nil
}
