// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command walcat replays a WAL directory to stdout, one record per line.
// Records are treated as opaque text; binary payloads print their raw
// bytes verbatim, which may not render cleanly in a terminal.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dreamsxin/waleng"
)

func main() {
	location := flag.String("dir", "", "WAL directory to replay")
	flag.Parse()

	if *location == "" {
		fmt.Fprintln(os.Stderr, "walcat: -dir is required")
		os.Exit(2)
	}

	cfg := waleng.NewConfig(*location)
	engine, err := waleng.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walcat: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	it, err := engine.Read(decodeText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walcat: %v\n", err)
		os.Exit(1)
	}
	defer it.Close()

	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		fmt.Println(rec.(string))
	}
}

func decodeText(payload []byte) (any, bool) {
	return string(payload), true
}
