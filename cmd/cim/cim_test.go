package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	return string(buf[:n])
}

func TestPutGetRoundTrip(t *testing.T) {
	storeDir := t.TempDir()
	filePath := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(filePath, []byte("hello cim"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var cidStr string
	out := captureStdout(t, func() {
		code := run([]string{"put", "-store", storeDir, filePath})
		if code != exitSuccess {
			t.Fatalf("put: expected exit %d, got %d", exitSuccess, code)
		}
	})
	cidStr = strings.TrimSpace(out)
	if cidStr == "" {
		t.Fatal("expected a CID printed to stdout")
	}

	outFile := filepath.Join(t.TempDir(), "out.txt")
	code := run([]string{"get", "-store", storeDir, "-cid", cidStr, "-out", outFile})
	if code != exitSuccess {
		t.Fatalf("get: expected exit %d, got %d", exitSuccess, code)
	}
	got, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "hello cim" {
		t.Errorf("expected round-tripped content, got %q", got)
	}
}

func TestGet_MissingCIDExitsNotFound(t *testing.T) {
	storeDir := t.TempDir()
	// A syntactically valid but never-written CID.
	code := run([]string{"put", "-store", storeDir, writeTempFile(t, "seed")})
	if code != exitSuccess {
		t.Fatalf("put: expected exit %d, got %d", exitSuccess, code)
	}
	code = run([]string{"get", "-store", storeDir, "-cid", "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"})
	if code != exitNotFound {
		t.Errorf("expected exitNotFound, got %d", code)
	}
}

func TestChainAppendAndVerify(t *testing.T) {
	storeDir := t.TempDir()
	f1 := writeTempFile(t, "first entry")
	f2 := writeTempFile(t, "second entry")

	if code := run([]string{"chain", "-store", storeDir, "append", f1}); code != exitSuccess {
		t.Fatalf("chain append 1: expected exit %d, got %d", exitSuccess, code)
	}
	if code := run([]string{"chain", "-store", storeDir, "append", f2}); code != exitSuccess {
		t.Fatalf("chain append 2: expected exit %d, got %d", exitSuccess, code)
	}
	if code := run([]string{"chain", "-store", storeDir, "verify"}); code != exitSuccess {
		t.Fatalf("chain verify: expected exit %d, got %d", exitSuccess, code)
	}
}

func TestSearch_FindsPutContent(t *testing.T) {
	storeDir := t.TempDir()
	f := writeTempFile(t, "findable unique token")
	if code := run([]string{"put", "-store", storeDir, "-title", "Note", f}); code != exitSuccess {
		t.Fatalf("put: expected exit %d, got %d", exitSuccess, code)
	}
	out := captureStdout(t, func() {
		code := run([]string{"search", "-store", storeDir, "-term", "unique"})
		if code != exitSuccess {
			t.Fatalf("search: expected exit %d, got %d", exitSuccess, code)
		}
	})
	if !strings.Contains(out, "Note") {
		t.Errorf("expected search output to include title, got %q", out)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}
