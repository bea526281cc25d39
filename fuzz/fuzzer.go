package fuzzer

import (
	"encoding/binary"
	"fmt"

	boc "github.com/tonkit/go-boc"
)

var Debug = false

type opCode byte

const (
	opLeaf opCode = iota
	opBranch
	opPrune
	opProof
	opUpdate
	opLibrary
	opEncode
	opPersist
	opDiff
	opMax
)

type op struct {
	code  opCode
	key   uint64
	value uint64
}

func Parse(data []byte) (ops []op) {
	scratch := make([]byte, 17)

	for len(data) > 0 {
		n := copy(scratch, data)
		data = data[n:]

		code := opCode(scratch[0] % byte(opMax))
		k := binary.LittleEndian.Uint64(scratch[1:])
		v := binary.LittleEndian.Uint64(scratch[9:])
		ops = append(ops, op{code, k, v})
	}
	return ops
}

// Fuzz builds a DAG from the ops in data, checking every encode and
// decode against the DAG it started from.
func Fuzz(data []byte) int {
	if len(data) < 1 {
		return -1
	}

	bag := newCheckedBag()
	for _, op := range Parse(data) {
		switch op.code {
		case opLeaf:
			bag.leaf(op.key, op.value)
		case opBranch:
			bag.branch(op.key, op.value)
		case opPrune:
			bag.prune(op.key, op.value)
		case opProof:
			bag.proof(op.key)
		case opUpdate:
			bag.update(op.key, op.value)
		case opLibrary:
			bag.library(op.key)
		case opEncode:
			bag.encode(op.key, op.value)
		case opPersist:
			bag.persist(op.key, op.value)
		case opDiff:
			bag.diff(op.key, op.value)
		default:
			panic("impossible")
		}
	}
	if Debug {
		fmt.Printf("checking\n")
	}
	bag.check()
	return 0
}

var decodeVariants = [][]boc.DecodeOption{
	nil,
	{boc.LazyLoad(true)},
	{boc.UseCache(false)},
	{boc.CheckHashes(false), boc.CheckCRC32C(false)},
	{boc.LazyLoad(true), boc.UseCache(false)},
}

// FuzzDecode feeds arbitrary bytes to the decoder. Whatever decodes must
// survive a round trip through the encoder.
func FuzzDecode(data []byte) int {
	for _, opts := range decodeVariants {
		bag, err := boc.NewBag(boc.NewBytesSource(data), opts...)
		if err != nil {
			continue
		}
		// Roots of a lazy bag may fail on first use; that is fine.
		for i := 0; i < bag.RootCount(); i++ {
			if r, err := bag.Root(i); err == nil {
				_, _ = reachable(r)
			}
		}
	}

	roots, err := boc.Decode(data)
	if err != nil {
		return 0
	}
	if Debug {
		fmt.Printf("decoded %d roots\n", len(roots))
	}
	out, err := boc.Encode(roots)
	if err != nil {
		panic(fmt.Sprintf("re-encoding decoded bag: %s", err))
	}
	again, err := boc.Decode(out)
	if err != nil {
		panic(fmt.Sprintf("decoding re-encoded bag: %s", err))
	}
	if len(again) != len(roots) {
		panic(fmt.Sprintf("expected %d roots, got %d", len(roots), len(again)))
	}
	for i := range roots {
		if !sameCell(roots[i], again[i]) {
			panic(fmt.Sprintf("root %d changed in the round trip", i))
		}
	}
	return 1
}
