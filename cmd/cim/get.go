package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stackdump/cim/pkg/cidkit"
)

func runGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	store := storeFlag(fs)
	cidArg := fs.String("cid", "", "CID to retrieve")
	out := fs.String("out", "-", "output file, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *cidArg == "" {
		fmt.Fprintln(os.Stderr, "cim get: -cid is required")
		return exitUsage
	}

	cid, err := cidkit.ParseAny(*cidArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim get: parse cid: %v\n", err)
		return exitUsage
	}

	env, err := openEnv(*store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim get: %v\n", err)
		return exitBackendUnavailable
	}
	defer env.close()

	data, err := env.objects.GetRaw(bgCtx, cid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim get: %v\n", err)
		return exitCodeFor(err)
	}

	if *out == "-" {
		os.Stdout.Write(data)
		return exitSuccess
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "cim get: write %s: %v\n", *out, err)
		return exitBackendUnavailable
	}
	return exitSuccess
}
