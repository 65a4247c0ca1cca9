// Command cim is a thin CLI over a filesystem-backed store: put/get
// a content-addressed object, search the index, and append to or
// verify a content chain. It is the exit-code wrapper named in base
// §6; it is not the embeddable engine itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// bgCtx is the root context every subcommand runs under; cim is a
// one-shot process with no cancellation source of its own.
var bgCtx = context.Background()

const (
	exitSuccess           = 0
	exitUsage             = 2
	exitNotFound          = 3
	exitIntegrityFailure  = 4
	exitBackendUnavailable = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "put":
		return runPut(rest)
	case "get":
		return runGet(rest)
	case "search":
		return runSearch(rest)
	case "chain":
		return runChain(rest)
	default:
		fmt.Fprintf(os.Stderr, "cim: unknown subcommand %q\n", sub)
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `cim: content-identity mesh CLI

Usage:
  cim put    -store DIR [-domain DOMAIN] FILE
  cim get    -store DIR -cid CID [-out FILE]
  cim search -store DIR [-term TERM]... [-tag TAG]... [-type TYPE]... [-limit N]
  cim chain  -store DIR (append FILE | verify)`)
}

func storeFlag(fs *flag.FlagSet) *string {
	return fs.String("store", "data", "base directory for the object store, index, and chain")
}

func exitCodeFor(err error) int {
	switch classifyErr(err) {
	case classNotFound:
		return exitNotFound
	case classIntegrity:
		return exitIntegrityFailure
	case classBackend:
		return exitBackendUnavailable
	default:
		return exitUsage
	}
}
