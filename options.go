package boc

import (
	"fmt"
)

// DefaultInliningBudget bounds how many cells may be read before hitting a
// cell with an embedded hash.
const DefaultInliningBudget = 64

type encodeConfig struct {
	withIndex          bool
	withCRC32C         bool
	withCacheBits      bool
	withTopHashes      bool
	withInternalHashes bool
	budget             int
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeConfig) error

// WithIndex emits the per-cell offset index for random access.
func WithIndex(on bool) EncodeOption {
	return func(c *encodeConfig) error {
		c.withIndex = on
		return nil
	}
}

// WithCRC32C appends a CRC32-C of everything written.
func WithCRC32C(on bool) EncodeOption {
	return func(c *encodeConfig) error {
		c.withCRC32C = on
		return nil
	}
}

// WithCacheBits marks cells reached from several parents in the index.
// It implies WithIndex, whatever the order of the options.
func WithCacheBits(on bool) EncodeOption {
	return func(c *encodeConfig) error {
		c.withCacheBits = on
		return nil
	}
}

// WithTopHashes embeds the hashes of the roots.
func WithTopHashes(on bool) EncodeOption {
	return func(c *encodeConfig) error {
		c.withTopHashes = on
		return nil
	}
}

// WithInternalHashes embeds the hashes of checkpoint cells.
func WithInternalHashes(on bool) EncodeOption {
	return func(c *encodeConfig) error {
		c.withInternalHashes = on
		return nil
	}
}

// WithInliningBudget sets the checkpoint placement budget.
func WithInliningBudget(budget int) EncodeOption {
	return func(c *encodeConfig) error {
		if budget < 2 || budget > maxCellWeight {
			return fmt.Errorf("inlining budget must be within [2, %d], is %d", maxCellWeight, budget)
		}
		c.budget = budget
		return nil
	}
}

func defaultEncodeConfig() *encodeConfig {
	return &encodeConfig{
		budget: DefaultInliningBudget,
	}
}

type decodeConfig struct {
	checkHashes bool
	lazyLoad    bool
	checkCRC32C bool
	useCache    bool
}

// DecodeOption configures Decode and NewBag.
type DecodeOption func(*decodeConfig) error

// CheckHashes verifies embedded hashes and depths against the rebuilt cells.
func CheckHashes(on bool) DecodeOption {
	return func(c *decodeConfig) error {
		c.checkHashes = on
		return nil
	}
}

// LazyLoad defers loading the subtree of cells with embedded hashes until
// one of their references is read. Until then such a cell reports the
// hashes and depths embedded in the bag as is; CheckHashes verifies them
// on the first Reference call, not before.
func LazyLoad(on bool) DecodeOption {
	return func(c *decodeConfig) error {
		c.lazyLoad = on
		return nil
	}
}

// CheckCRC32C verifies the trailing checksum before any cell is read.
func CheckCRC32C(on bool) DecodeOption {
	return func(c *decodeConfig) error {
		c.checkCRC32C = on
		return nil
	}
}

// UseCache keeps decoded cells so that cells shared between roots are
// decoded once.
func UseCache(on bool) DecodeOption {
	return func(c *decodeConfig) error {
		c.useCache = on
		return nil
	}
}

func defaultDecodeConfig() *decodeConfig {
	return &decodeConfig{
		checkHashes: true,
		checkCRC32C: true,
		useCache:    true,
	}
}
