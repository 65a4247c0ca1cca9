// Package envelope implements the typed content envelopes of base
// §4.C: one Go type per built-in format, magic-byte verification,
// content-type detection, and the canonical-payload hooks whose output
// callers pass to pkg/cidkit's CID builder.
package envelope

import (
	"path/filepath"
	"strings"

	"github.com/stackdump/cim/pkg/cimerr"
)

// ContentType names a detected or declared content format.
type ContentType string

const (
	Unknown ContentType = "unknown"

	TypePDF      ContentType = "pdf"
	TypeDOCX     ContentType = "docx"
	TypeMarkdown ContentType = "markdown"
	TypeText     ContentType = "text"

	TypeJPEG ContentType = "jpeg"
	TypePNG  ContentType = "png"
	TypeGIF  ContentType = "gif"
	TypeWebP ContentType = "webp"

	TypeMP3  ContentType = "mp3"
	TypeWAV  ContentType = "wav"
	TypeFLAC ContentType = "flac"
	TypeAAC  ContentType = "aac"
	TypeOGG  ContentType = "ogg"

	TypeMP4 ContentType = "mp4"
	TypeMOV ContentType = "mov"
	TypeMKV ContentType = "mkv"
	TypeAVI ContentType = "avi"

	TypeEvent      ContentType = "event"
	TypeLinkedData ContentType = "jsonld"
	TypeCustom     ContentType = "custom"
)

// Envelope is implemented by every typed content wrapper. CanonicalBytes
// is what pkg/cidkit hashes to build the CID; it may omit transient
// fields per base §3's "canonical bytes" definition.
type Envelope interface {
	CodecCode() uint64
	ContentType() ContentType
	CanonicalBytes() ([]byte, error)
}

// magicEntry describes one binary-format prefix check from base §4.C.
type magicEntry struct {
	contentType ContentType
	offset      int
	prefix      []byte
	// matchRIFF, when set, additionally requires a 4-byte form tag at
	// offset+8 (used for WebP's RIFF....WEBP layout).
	matchRIFF string
	// matchAtFTYP marks an ftyp-atom entry (MP4/MOV): the "ftyp" prefix
	// at offset 4 is the whole check.
	matchAtFTYP bool
}

var magicTable = []magicEntry{
	{contentType: TypePDF, offset: 0, prefix: []byte("%PDF")},
	{contentType: TypePNG, offset: 0, prefix: []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	{contentType: TypeJPEG, offset: 0, prefix: []byte{0xFF, 0xD8, 0xFF}},
	{contentType: TypeGIF, offset: 0, prefix: []byte("GIF8")},
	{contentType: TypeWebP, offset: 0, prefix: []byte("RIFF"), matchRIFF: "WEBP"},
	{contentType: TypeMP3, offset: 0, prefix: []byte{0xFF, 0xFB}},
	{contentType: TypeMP3, offset: 0, prefix: []byte("ID3")},
	{contentType: TypeOGG, offset: 0, prefix: []byte("OggS")},
	{contentType: TypeFLAC, offset: 0, prefix: []byte("fLaC")},
	{contentType: TypeMP4, offset: 4, prefix: []byte("ftyp"), matchAtFTYP: true},
	{contentType: TypeMOV, offset: 4, prefix: []byte("ftyp"), matchAtFTYP: true},
	{contentType: TypeMKV, offset: 0, prefix: []byte{0x1A, 0x45, 0xDF, 0xA3}},
}

// extensionTable is the detection fallback when magic bytes don't match.
var extensionTable = map[string]ContentType{
	".pdf":  TypePDF,
	".docx": TypeDOCX,
	".md":   TypeMarkdown,
	".txt":  TypeText,
	".jpg":  TypeJPEG,
	".jpeg": TypeJPEG,
	".png":  TypePNG,
	".gif":  TypeGIF,
	".webp": TypeWebP,
	".mp3":  TypeMP3,
	".wav":  TypeWAV,
	".flac": TypeFLAC,
	".aac":  TypeAAC,
	".ogg":  TypeOGG,
	".mp4":  TypeMP4,
	".mov":  TypeMOV,
	".mkv":  TypeMKV,
	".avi":  TypeAVI,
	".jsonld": TypeLinkedData,
}

// CodecCodeForType returns the fixed codec code a built-in content
// type is always stored under, for callers (like objectstore's typed
// get path) that need to predict a codec code from a ContentType
// without holding an envelope instance. Custom and Unknown have no
// single fixed code and report ok=false.
func CodecCodeForType(ct ContentType) (code uint64, ok bool) {
	switch ct {
	case TypePDF:
		return 0x600001, true
	case TypeDOCX:
		return 0x600002, true
	case TypeMarkdown:
		return 0x600003, true
	case TypeText:
		return 0x600004, true
	case TypeJPEG:
		return 0x610001, true
	case TypePNG:
		return 0x610002, true
	case TypeGIF:
		return 0x610003, true
	case TypeWebP:
		return 0x610004, true
	case TypeMP3:
		return 0x620001, true
	case TypeWAV:
		return 0x620002, true
	case TypeFLAC:
		return 0x620003, true
	case TypeAAC:
		return 0x620004, true
	case TypeOGG:
		return 0x620005, true
	case TypeMP4:
		return 0x630001, true
	case TypeMOV:
		return 0x630002, true
	case TypeMKV:
		return 0x630003, true
	case TypeAVI:
		return 0x630004, true
	case TypeEvent:
		return eventCodecCode, true
	case TypeLinkedData:
		return linkedDataCodecCode, true
	default:
		return 0, false
	}
}

// VerifyMagic checks data against the magic-byte prefix for want,
// failing with FormatMismatch on any disagreement. Formats outside the
// base §4.C table (DOCX, Markdown, Text, WAV, AAC, AVI) have no
// magic-byte requirement and always pass.
func VerifyMagic(data []byte, want ContentType) error {
	var candidates []magicEntry
	for _, e := range magicTable {
		if e.contentType == want {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil // no magic-byte requirement for this format
	}
	for _, e := range candidates {
		if matchesEntry(data, e) {
			return nil
		}
	}
	return &cimerr.FormatMismatchError{Format: string(want)}
}

func matchesEntry(data []byte, e magicEntry) bool {
	if e.offset+len(e.prefix) > len(data) {
		return false
	}
	if string(data[e.offset:e.offset+len(e.prefix)]) != string(e.prefix) {
		return false
	}
	switch {
	case e.matchRIFF != "":
		const formOffset = 8
		const formLen = 4
		if formOffset+formLen > len(data) {
			return false
		}
		return string(data[formOffset:formOffset+formLen]) == e.matchRIFF
	case e.matchAtFTYP:
		return true // the ftyp tag itself is the prefix checked above
	default:
		return true
	}
}

// Detect determines a content type from magic bytes first, falling
// back to the filename extension in nameHint, and returning Unknown
// if neither source yields a match (base §4.C "Detection").
func Detect(data []byte, nameHint string) ContentType {
	for _, e := range magicTable {
		if matchesEntry(data, e) {
			return e.contentType
		}
	}
	if nameHint != "" {
		ext := strings.ToLower(filepath.Ext(nameHint))
		if ct, ok := extensionTable[ext]; ok {
			return ct
		}
	}
	return Unknown
}
