package main

import (
	"os"

	fuzzer "github.com/tonkit/go-boc/fuzz"
)

func init() {
	fuzzer.Debug = true
}

// Replays a crasher. With -decode the file is fed to the decoder instead of
// the op interpreter.
func main() {
	if len(os.Args) == 3 && os.Args[1] == "-decode" {
		data, err := os.ReadFile(os.Args[2])
		if err != nil {
			panic(err)
		}
		fuzzer.FuzzDecode(data)
		return
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		panic(err)
	}
	fuzzer.Fuzz(data)
}
