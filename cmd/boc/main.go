// boc inspects and rewrites serialized bags of cells.
//
//	boc info [--hex] FILE
//	boc reencode [--hex] [--index] [--crc32c] [--cache-bits] [--top-hashes] [--internal-hashes] [--budget N] IN OUT
//	boc diff [--hex] [--workers N] PREV CUR
//
// A file name of - reads stdin or writes stdout.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"

	boc "github.com/tonkit/go-boc"
	"github.com/tonkit/go-boc/cell"
)

var log = logging.Logger("boc/cmd")

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printHelp()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	flagSet := pflag.NewFlagSet("boc "+cmd, pflag.ContinueOnError)
	hexInput := flagSet.Bool("hex", false, "inputs are hex encoded")
	verbose := flagSet.BoolP("verbose", "v", false, "log decoding and encoding details")

	var (
		index, crc, cacheBits, topHashes, internalHashes bool
		budget, workers                                  int
	)
	switch cmd {
	case "info":
	case "reencode":
		flagSet.BoolVar(&index, "index", false, "write the cell index")
		flagSet.BoolVar(&crc, "crc32c", false, "append a CRC32-C checksum")
		flagSet.BoolVar(&cacheBits, "cache-bits", false, "mark shared cells in the index")
		flagSet.BoolVar(&topHashes, "top-hashes", false, "embed the hashes of the roots")
		flagSet.BoolVar(&internalHashes, "internal-hashes", false, "embed the hashes of checkpoint cells")
		flagSet.IntVar(&budget, "budget", boc.DefaultInliningBudget, "checkpoint placement budget")
	case "diff":
		flagSet.IntVar(&workers, "workers", 1, "expand cells with this many workers")
	case "help", "-h", "--help":
		printHelp()
		return nil
	default:
		return xerrors.Errorf("unknown command %q: %w", cmd, errUsage)
	}
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *verbose {
		for _, name := range []string{"boc", "boc/cmd"} {
			if err := logging.SetLogLevel(name, "debug"); err != nil {
				return xerrors.Errorf("setting log level of %s: %w", name, err)
			}
		}
	}

	in := input{stdin: stdin, hex: *hexInput}
	args = flagSet.Args()
	switch cmd {
	case "info":
		if len(args) != 1 {
			return errUsage
		}
		return info(in, args[0], stdout)
	case "reencode":
		if len(args) != 2 {
			return errUsage
		}
		opts := []boc.EncodeOption{
			boc.WithIndex(index),
			boc.WithCRC32C(crc),
			boc.WithCacheBits(cacheBits),
			boc.WithTopHashes(topHashes),
			boc.WithInternalHashes(internalHashes),
			boc.WithInliningBudget(budget),
		}
		return reencode(in, args[0], args[1], stdout, opts)
	default:
		if len(args) != 2 {
			return errUsage
		}
		return diff(in, args[0], args[1], workers, stdout)
	}
}

type input struct {
	stdin io.Reader
	hex   bool
}

func (in input) read(name string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(in.stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, err
	}
	if in.hex {
		data, err = hex.DecodeString(string(bytes.TrimSpace(data)))
		if err != nil {
			return nil, xerrors.Errorf("decoding hex from %s: %w", name, err)
		}
	}
	return data, nil
}

func (in input) open(name string) (*boc.Bag, error) {
	data, err := in.read(name)
	if err != nil {
		return nil, err
	}
	bag, err := boc.NewBag(boc.NewBytesSource(data))
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %w", name, err)
	}
	log.Debugw("opened bag", "file", name, "header", bag.Header())
	return bag, nil
}

func info(in input, name string, w io.Writer) error {
	bag, err := in.open(name)
	if err != nil {
		return err
	}
	h := bag.Header()
	fmt.Fprintf(w, "magic:        %#08x\n", h.Magic)
	fmt.Fprintf(w, "flags:        %#02x (index=%t crc32c=%t cache-bits=%t)\n", h.Flags(), h.HasIndex, h.HasCRC32C, h.HasCacheBits)
	fmt.Fprintf(w, "ref size:     %d\n", h.RefByteSize)
	fmt.Fprintf(w, "offset size:  %d\n", h.OffsetByteSize)
	fmt.Fprintf(w, "cells:        %d\n", h.CellCount)
	fmt.Fprintf(w, "roots:        %d\n", h.RootCount)
	fmt.Fprintf(w, "absent:       %d\n", h.AbsentCount)
	fmt.Fprintf(w, "data size:    %d\n", h.DataSize)
	fmt.Fprintf(w, "total size:   %d\n", h.TotalSize)

	roots, err := bag.Roots()
	if err != nil {
		return xerrors.Errorf("decoding %s: %w", name, err)
	}
	for i, r := range roots {
		fmt.Fprintf(w, "root %d:       %s depth=%d refs=%d\n", i, cell.ReprHash(r), r.Depth(cell.MaxLevel), r.RefCount())
	}
	return nil
}

func reencode(in input, from, to string, stdout io.Writer, opts []boc.EncodeOption) error {
	bag, err := in.open(from)
	if err != nil {
		return err
	}
	roots, err := bag.Roots()
	if err != nil {
		return xerrors.Errorf("decoding %s: %w", from, err)
	}

	if to == "-" {
		return boc.EncodeTo(stdout, roots, opts...)
	}
	f, err := os.Create(to)
	if err != nil {
		return err
	}
	if err := boc.EncodeTo(f, roots, opts...); err != nil {
		_ = f.Close()
		return xerrors.Errorf("encoding %s: %w", to, err)
	}
	return f.Close()
}

func diff(in input, prevName, curName string, workers int, w io.Writer) error {
	if prevName == "-" && curName == "-" {
		return xerrors.Errorf("only one side can be read from stdin: %w", errUsage)
	}
	prev, err := singleRoot(in, prevName)
	if err != nil {
		return err
	}
	cur, err := singleRoot(in, curName)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var changes []*boc.Change
	if workers > 1 {
		changes, err = boc.ParallelDiff(ctx, prev, cur, workers)
	} else {
		changes, err = boc.Diff(ctx, prev, cur)
	}
	if err != nil {
		return err
	}
	for _, ch := range changes {
		fmt.Fprintln(w, ch)
	}
	return nil
}

func singleRoot(in input, name string) (cell.Cell, error) {
	bag, err := in.open(name)
	if err != nil {
		return nil, err
	}
	if bag.RootCount() != 1 {
		return nil, xerrors.Errorf("%s has %d roots, expected one", name, bag.RootCount())
	}
	return bag.Root(0)
}

func printHelp() {
	fmt.Fprint(os.Stderr, `boc inspects and rewrites serialized bags of cells.

Usage:
  boc info [--hex] FILE
  boc reencode [--hex] [--index] [--crc32c] [--cache-bits] [--top-hashes]
               [--internal-hashes] [--budget N] IN OUT
  boc diff [--hex] [--workers N] PREV CUR

A file name of - reads stdin or writes stdout. Pass -v to any command
for debug logs.
`)
}
