package envelope

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDetect_MagicBytesTakePriorityOverExtension(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	if got := Detect(png, "photo.jpg"); got != TypePNG {
		t.Errorf("expected magic bytes to win over extension, got %s", got)
	}
}

func TestDetect_FallsBackToExtension(t *testing.T) {
	if got := Detect([]byte("plain text body"), "notes.txt"); got != TypeText {
		t.Errorf("expected extension fallback to text, got %s", got)
	}
}

func TestDetect_UnknownWithNoSignal(t *testing.T) {
	if got := Detect([]byte{0, 1, 2, 3}, ""); got != Unknown {
		t.Errorf("expected Unknown, got %s", got)
	}
}

func TestVerifyMagic_WebPRequiresRIFFAndWEBPTag(t *testing.T) {
	good := append([]byte("RIFF"), []byte{0, 0, 0, 0}...)
	good = append(good, []byte("WEBP")...)
	if err := VerifyMagic(good, TypeWebP); err != nil {
		t.Errorf("expected valid WebP header to pass: %v", err)
	}
	bad := append([]byte("RIFF"), []byte{0, 0, 0, 0}...)
	bad = append(bad, []byte("AVI ")...)
	if err := VerifyMagic(bad, TypeWebP); err == nil {
		t.Error("expected RIFF/AVI to fail WebP magic check")
	}
}

func TestDocument_CanonicalBytesRejectsMagicMismatch(t *testing.T) {
	d := Document{Kind: TypePDF, Payload: []byte("not a pdf")}
	if _, err := d.CanonicalBytes(); err == nil {
		t.Error("expected FormatMismatch for a non-PDF payload")
	}
}

func TestNewDocument_MarkdownExtractsFrontmatter(t *testing.T) {
	md := []byte("---\ntitle: Hello\nauthor: Ada\nlang: en\n---\nbody text\n")
	d, err := NewDocument(md, "post.md")
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	if d.Metadata.Title != "Hello" || d.Metadata.Author != "Ada" {
		t.Errorf("expected frontmatter extracted, got %+v", d.Metadata)
	}
}

func TestExtractFrontmatter_NoBlockReturnsFullBody(t *testing.T) {
	body := []byte("just some text, no frontmatter")
	fm, rest, err := ExtractFrontmatter(body)
	if err != nil {
		t.Fatalf("ExtractFrontmatter: %v", err)
	}
	if fm.Title != "" || !bytes.Equal(rest, body) {
		t.Errorf("expected zero-value frontmatter and unchanged body, got %+v %q", fm, rest)
	}
}

func TestExtractWAVMetadata_ReadsFmtChunk(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	buf.Write(make([]byte, 4))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(2))     // channels
	binary.Write(&buf, binary.LittleEndian, uint32(44100)) // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(0))     // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(0))     // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))    // bits per sample

	meta := extractWAVMetadata(buf.Bytes())
	if meta.SampleRateHz != 44100 || meta.Channels != 2 || meta.BitsPerSample != 16 {
		t.Errorf("unexpected WAV metadata: %+v", meta)
	}
}

func TestExtractImageMetadata_WebPVP8X(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	buf.Write(make([]byte, 4))
	buf.WriteString("WEBP")
	buf.WriteString("VP8X")
	binary.Write(&buf, binary.LittleEndian, uint32(10))
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write([]byte{99, 0, 0}) // width-1 = 99 -> width 100
	buf.Write([]byte{49, 0, 0}) // height-1 = 49 -> height 50

	meta := ExtractImageMetadata(buf.Bytes(), TypeWebP)
	if meta.Width != 100 || meta.Height != 50 {
		t.Errorf("expected 100x50, got %dx%d", meta.Width, meta.Height)
	}
}

func TestEvent_CanonicalBytesExcludesDeliveryMetadata(t *testing.T) {
	e1 := Event{EventType: "UserCreated", AggregateID: "u1", Data: map[string]any{"email": "a@b.com"}, EventID: "id-1", Timestamp: 100}
	e2 := Event{EventType: "UserCreated", AggregateID: "u1", Data: map[string]any{"email": "a@b.com"}, EventID: "id-2", Timestamp: 200}
	b1, err := e1.CanonicalBytes()
	if err != nil {
		t.Fatalf("e1 canonical: %v", err)
	}
	b2, err := e2.CanonicalBytes()
	if err != nil {
		t.Fatalf("e2 canonical: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Errorf("expected identical canonical bytes despite differing EventID/Timestamp")
	}
}

func TestNewEvent_GeneratesDistinctTransientIDsSameCID(t *testing.T) {
	e1 := NewEvent("UserCreated", "u1", map[string]any{"email": "a@b.com"})
	e2 := NewEvent("UserCreated", "u1", map[string]any{"email": "a@b.com"})
	if e1.EventID == e2.EventID || e1.CorrelationID == e2.CorrelationID {
		t.Fatal("expected each NewEvent call to mint distinct transient ids")
	}
	b1, err := e1.CanonicalBytes()
	if err != nil {
		t.Fatalf("e1 canonical: %v", err)
	}
	b2, err := e2.CanonicalBytes()
	if err != nil {
		t.Fatalf("e2 canonical: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Error("expected identical canonical bytes despite distinct transient ids")
	}
}

func TestNewCustom_RejectsOutOfRangeCode(t *testing.T) {
	if _, err := NewCustom(0x55, []byte("x"), nil); err == nil {
		t.Error("expected out-of-range custom code to be rejected")
	}
	if _, err := NewCustom(0x330001, []byte("x"), nil); err != nil {
		t.Errorf("expected in-range custom code to succeed: %v", err)
	}
}

func TestCustom_CanonicalFnOverride(t *testing.T) {
	c := Custom{
		Code:    0x330001,
		Payload: []byte("ignored"),
		CanonicalFn: func([]byte) ([]byte, error) {
			return []byte("fixed"), nil
		},
	}
	b, err := c.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	if string(b) != "fixed" {
		t.Errorf("expected override to take effect, got %q", b)
	}
}
