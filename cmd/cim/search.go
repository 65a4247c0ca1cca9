package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stackdump/cim/internal/search"
)

// stringSlice accumulates repeated -flag values, e.g. -term a -term b.
type stringSlice []string

func (s *stringSlice) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	store := storeFlag(fs)
	var terms, tags, types stringSlice
	fs.Var(&terms, "term", "text term to search for (repeatable)")
	fs.Var(&tags, "tag", "tag filter (repeatable)")
	fs.Var(&types, "type", "content-type filter (repeatable)")
	limit := fs.Int("limit", 20, "maximum results")
	offset := fs.Int("offset", 0, "result offset")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	env, err := openEnv(*store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim search: %v\n", err)
		return exitBackendUnavailable
	}
	defer env.close()

	idx, err := env.loadIndex()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim search: load index: %v\n", err)
		return exitBackendUnavailable
	}

	results := idx.Search(search.Query{
		TextTerms:    terms,
		Tags:         tags,
		ContentTypes: types,
		Limit:        *limit,
		Offset:       *offset,
	})
	for _, r := range results {
		fmt.Printf("%s\t%.4f\t%s\n", r.CID, r.Score, r.Metadata.Title)
	}
	return exitSuccess
}
