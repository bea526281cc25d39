package main

import (
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/tonkit/go-boc/internal"
)

func main() {
	if err := cbg.WriteTupleEncodersToFile("internal/cbor_gen.go", "internal", internal.Manifest{}); err != nil {
		panic(err)
	}
}
