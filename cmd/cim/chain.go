package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gocid "github.com/ipfs/go-cid"

	"github.com/stackdump/cim/pkg/chain"
	"github.com/stackdump/cim/pkg/cidkit"
	"github.com/stackdump/cim/pkg/envelope"
)

// genericChainCodec is the Custom envelope code cim chain append uses
// for arbitrary file content; it has no type-specific canonicalization
// beyond "these exact bytes".
const genericChainCodec = 0x330001

func runChain(args []string) int {
	fs := flag.NewFlagSet("chain", flag.ContinueOnError)
	store := storeFlag(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "cim chain: expected append FILE or verify")
		return exitUsage
	}

	switch fs.Arg(0) {
	case "append":
		if fs.NArg() != 2 {
			fmt.Fprintln(os.Stderr, "cim chain append: expected exactly one FILE argument")
			return exitUsage
		}
		return chainAppend(*store, fs.Arg(1))
	case "verify":
		return chainVerify(*store)
	default:
		fmt.Fprintf(os.Stderr, "cim chain: unknown action %q\n", fs.Arg(0))
		return exitUsage
	}
}

func headPath(storeDir string) string {
	return filepath.Join(storeDir, "chain", "HEAD")
}

func readHead(storeDir string) (gocid.Cid, bool, error) {
	raw, err := os.ReadFile(headPath(storeDir))
	if os.IsNotExist(err) {
		return gocid.Undef, false, nil
	}
	if err != nil {
		return gocid.Undef, false, err
	}
	cid, err := cidkit.ParseAny(strings.TrimSpace(string(raw)))
	if err != nil {
		return gocid.Undef, false, err
	}
	return cid, true, nil
}

func writeHead(storeDir string, cid gocid.Cid) error {
	if err := os.MkdirAll(filepath.Join(storeDir, "chain"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(headPath(storeDir), []byte(cid.String()), 0o644)
}

func loadChain(storeDir string, chainBE chain.Backend) (*chain.Chain, error) {
	head, exists, err := readHead(storeDir)
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	if !exists {
		return chain.New(nil), nil
	}
	return chain.Load(bgCtx, chainBE, nil, head)
}

func chainAppend(storeDir, file string) int {
	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain append: read %s: %v\n", file, err)
		return exitNotFound
	}

	env, err := openEnv(storeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain append: %v\n", err)
		return exitBackendUnavailable
	}
	defer env.close()

	c, err := loadChain(storeDir, env.chainBE)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain append: %v\n", err)
		return exitCodeFor(err)
	}

	content, err := envelope.NewCustom(genericChainCodec, data, func(b []byte) ([]byte, error) { return b, nil })
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain append: %v\n", err)
		return exitUsage
	}

	item, err := c.Append(content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain append: %v\n", err)
		return exitCodeFor(err)
	}

	headCID, err := c.Save(bgCtx, env.chainBE)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain append: save: %v\n", err)
		return exitBackendUnavailable
	}
	if err := writeHead(storeDir, headCID); err != nil {
		fmt.Fprintf(os.Stderr, "cim chain append: write head: %v\n", err)
		return exitBackendUnavailable
	}

	fmt.Printf("appended %s (sequence %d), head %s\n", item.CID.String(), item.Sequence, headCID.String())
	return exitSuccess
}

func chainVerify(storeDir string) int {
	env, err := openEnv(storeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain verify: %v\n", err)
		return exitBackendUnavailable
	}
	defer env.close()

	c, err := loadChain(storeDir, env.chainBE)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cim chain verify: %v\n", err)
		return exitCodeFor(err)
	}
	if err := c.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "cim chain verify: %v\n", err)
		return exitIntegrityFailure
	}
	fmt.Printf("chain valid: %d items\n", c.Len())
	return exitSuccess
}
