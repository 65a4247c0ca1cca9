package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stackdump/cim/internal/objectstore"
	"github.com/stackdump/cim/internal/search"
	"github.com/stackdump/cim/pkg/envelope"
)

func runPut(args []string) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	store := storeFlag(fs)
	domain := fs.String("domain", "", "explicit partition domain hint (documents|contracts|invoices|medical|social_media)")
	title := fs.String("title", "", "title to index alongside the stored object")
	tags := fs.String("tags", "", "comma-separated tags to index")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "cim put: expected exactly one FILE argument")
		return exitUsage
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim put: read %s: %v\n", path, err)
		return exitNotFound
	}

	env, err := openEnv(*store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim put: %v\n", err)
		return exitBackendUnavailable
	}
	defer env.close()

	contentType := envelope.Detect(data, path)

	var cidStr string
	if *domain != "" {
		cid, _, err := env.objects.PutWithDomain(bgCtx, data, objectstore.Hints{
			NameHint: path,
			Metadata: map[string]string{"content_domain": *domain},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "cim put: %v\n", err)
			return exitCodeFor(err)
		}
		cidStr = cid.String()
	} else {
		cid, err := env.objects.PutRaw(bgCtx, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cim put: %v\n", err)
			return exitCodeFor(err)
		}
		cidStr = cid.String()
	}

	idx, err := env.loadIndex()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim put: load index: %v\n", err)
		return exitBackendUnavailable
	}
	idx.Put(cidStr, string(data), search.Metadata{
		Title:       *title,
		Tags:        splitCSV(*tags),
		ContentType: string(contentType),
		Size:        int64(len(data)),
	})
	if err := env.persistIndex(idx); err != nil {
		fmt.Fprintf(os.Stderr, "cim put: persist index: %v\n", err)
		return exitBackendUnavailable
	}

	fmt.Println(cidStr)
	return exitSuccess
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
