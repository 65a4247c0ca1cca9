package objectstore

import (
	"strings"
	"sync/atomic"
)

// Domain names a partition a stored object is routed to, drawn from
// the closed default category set base §3 defines (extensible by
// operators via UpdateStrategy's MIME/extension/matcher tables, but
// the category list itself is fixed here).
type Domain string

const (
	// media
	DomainMusic    Domain = "music"
	DomainVideo    Domain = "video"
	DomainImages   Domain = "images"
	DomainGraphics Domain = "graphics"

	// docs
	DomainDocuments     Domain = "documents"
	DomainSpreadsheets  Domain = "spreadsheets"
	DomainPresentations Domain = "presentations"
	DomainReports       Domain = "reports"

	// legal
	DomainContracts  Domain = "contracts"
	DomainAgreements Domain = "agreements"
	DomainPolicies   Domain = "policies"
	DomainCompliance Domain = "compliance"

	// social
	DomainSocialMedia Domain = "social_media"
	DomainMemes       Domain = "memes"
	DomainMessages    Domain = "messages"
	DomainPosts       Domain = "posts"

	// tech
	DomainSourceCode    Domain = "source_code"
	DomainConfiguration Domain = "configuration"
	DomainDocumentation Domain = "documentation"
	DomainSchemas       Domain = "schemas"

	// privacy
	DomainPersonal  Domain = "personal"
	DomainPrivate   Domain = "private"
	DomainEncrypted Domain = "encrypted"
	DomainSensitive Domain = "sensitive"

	// research
	DomainResearch    Domain = "research"
	DomainPapers      Domain = "papers"
	DomainStudies     Domain = "studies"
	DomainEducational Domain = "educational"

	// finance
	DomainFinancial  Domain = "financial"
	DomainInvoices   Domain = "invoices"
	DomainReceipts   Domain = "receipts"
	DomainStatements Domain = "statements"

	// health
	DomainMedical       Domain = "medical"
	DomainHealthRecords Domain = "health_records"
	DomainPrescriptions Domain = "prescriptions"
	DomainLabResults    Domain = "lab_results"

	// government
	DomainGovernment    Domain = "government"
	DomainPublicRecords Domain = "public_records"
	DomainLicenses      Domain = "licenses"
	DomainPermits       Domain = "permits"
)

// bucketSpec names a domain's bucket-naming area and specifier, fixing
// bucket names to base §6's "cim-<area>-<specifier>" convention.
type bucketSpec struct {
	area      string
	specifier string
}

var domainBuckets = map[Domain]bucketSpec{
	DomainMusic:    {"media", "music"},
	DomainVideo:    {"media", "video"},
	DomainImages:   {"media", "images"},
	DomainGraphics: {"media", "graphics"},

	// "general" rather than "documents" mirrors base §3's own worked
	// example bucket name cim-docs-general.
	DomainDocuments:     {"docs", "general"},
	DomainSpreadsheets:  {"docs", "spreadsheets"},
	DomainPresentations: {"docs", "presentations"},
	DomainReports:       {"docs", "reports"},

	DomainContracts:  {"legal", "contracts"},
	DomainAgreements: {"legal", "agreements"},
	DomainPolicies:   {"legal", "policies"},
	DomainCompliance: {"legal", "compliance"},

	DomainSocialMedia: {"social", "social_media"},
	DomainMemes:       {"social", "memes"},
	DomainMessages:    {"social", "messages"},
	DomainPosts:       {"social", "posts"},

	DomainSourceCode:    {"tech", "source_code"},
	DomainConfiguration: {"tech", "configuration"},
	DomainDocumentation: {"tech", "documentation"},
	DomainSchemas:       {"tech", "schemas"},

	DomainPersonal:  {"privacy", "personal"},
	DomainPrivate:   {"privacy", "private"},
	DomainEncrypted: {"privacy", "encrypted"},
	DomainSensitive: {"privacy", "sensitive"},

	DomainResearch:    {"research", "research"},
	DomainPapers:      {"research", "papers"},
	DomainStudies:     {"research", "studies"},
	DomainEducational: {"research", "educational"},

	DomainFinancial:  {"finance", "financial"},
	DomainInvoices:   {"finance", "invoices"},
	DomainReceipts:   {"finance", "receipts"},
	DomainStatements: {"finance", "statements"},

	DomainMedical:       {"health", "medical"},
	DomainHealthRecords: {"health", "health_records"},
	DomainPrescriptions: {"health", "prescriptions"},
	DomainLabResults:    {"health", "lab_results"},

	DomainGovernment:    {"gov", "government"},
	DomainPublicRecords: {"gov", "public_records"},
	DomainLicenses:      {"gov", "licenses"},
	DomainPermits:       {"gov", "permits"},
}

// BucketName maps a Domain to its storage bucket name, in base §6's
// "cim-<area>-<specifier>" convention. A Domain outside the default
// set (an operator-defined extension) falls back to "cim-custom-<name>".
func BucketName(d Domain) string {
	if spec, ok := domainBuckets[d]; ok {
		return "cim-" + spec.area + "-" + spec.specifier
	}
	return "cim-custom-" + string(d)
}

// Matcher is one keyword-presence pattern matcher, checked against
// preview text in descending Priority order.
type Matcher struct {
	Domain   Domain
	Keywords []string
	Priority int
}

func (m Matcher) matches(previewLower string) bool {
	for _, kw := range m.Keywords {
		if strings.Contains(previewLower, kw) {
			return true
		}
	}
	return false
}

// Hints carries the inputs to domain partitioning beyond the raw bytes.
type Hints struct {
	NameHint    string
	MIMEHint    string
	PreviewHint string
	Metadata    map[string]string // may carry "content_domain"
}

// PartitionStrategy is an atomically replaceable set of pattern
// matchers plus the MIME/extension fallback tables.
type PartitionStrategy struct {
	Matchers []Matcher
	MIMEMap  map[string]Domain
	ExtMap   map[string]Domain
}

// DefaultPartitionStrategy matches base §4.E's default matchers: a
// representative subset of the default domain set, picked for the
// content signals that are cheap to detect from preview text, MIME
// type, or file extension. Operators extend coverage to the rest of
// the default domain set via UpdateStrategy.
func DefaultPartitionStrategy() PartitionStrategy {
	return PartitionStrategy{
		Matchers: []Matcher{
			{Domain: DomainContracts, Keywords: []string{"contract", "agreement", "hereby agree"}, Priority: 100},
			{Domain: DomainInvoices, Keywords: []string{"invoice", "bill to", "payment due"}, Priority: 90},
			{Domain: DomainMedical, Keywords: []string{"patient", "diagnosis", "prescription"}, Priority: 80},
			{Domain: DomainSocialMedia, Keywords: []string{"#", "@", "post", "follow"}, Priority: 70},
		},
		MIMEMap: map[string]Domain{
			"application/pdf": DomainDocuments,
			"text/markdown":   DomainDocuments,
			"image/jpeg":      DomainImages,
			"image/png":       DomainImages,
			"audio/mpeg":      DomainMusic,
			"video/mp4":       DomainVideo,
		},
		ExtMap: map[string]Domain{
			".pdf":  DomainDocuments,
			".md":   DomainDocuments,
			".txt":  DomainDocuments,
			".jpg":  DomainImages,
			".jpeg": DomainImages,
			".png":  DomainImages,
			".mp3":  DomainMusic,
			".mp4":  DomainVideo,
			".go":   DomainSourceCode,
			".yaml": DomainConfiguration,
			".yml":  DomainConfiguration,
		},
	}
}

// Partitioner resolves a Domain for a put_with_domain call. Strategy
// updates are atomic: readers observe either the whole old strategy or
// the whole new one, never a partial update.
type Partitioner struct {
	strategy atomic.Pointer[PartitionStrategy]
}

// NewPartitioner starts from DefaultPartitionStrategy.
func NewPartitioner() *Partitioner {
	p := &Partitioner{}
	s := DefaultPartitionStrategy()
	p.strategy.Store(&s)
	return p
}

// UpdateStrategy atomically replaces the active strategy.
func (p *Partitioner) UpdateStrategy(s PartitionStrategy) {
	p.strategy.Store(&s)
}

// Select implements base §4.E's priority order: explicit hint, then
// highest-priority preview pattern match, then MIME, then extension,
// defaulting to DomainDocuments.
func (p *Partitioner) Select(hints Hints) Domain {
	if explicit, ok := hints.Metadata["content_domain"]; ok && explicit != "" {
		return Domain(explicit)
	}

	s := p.strategy.Load()
	if s != nil && hints.PreviewHint != "" {
		lower := strings.ToLower(hints.PreviewHint)
		best := -1
		var bestDomain Domain
		for _, m := range s.Matchers {
			if m.matches(lower) && m.Priority > best {
				best = m.Priority
				bestDomain = m.Domain
			}
		}
		if best >= 0 {
			return bestDomain
		}
	}

	if s != nil && hints.MIMEHint != "" {
		if d, ok := s.MIMEMap[hints.MIMEHint]; ok {
			return d
		}
	}

	if s != nil && hints.NameHint != "" {
		for ext, d := range s.ExtMap {
			if strings.HasSuffix(strings.ToLower(hints.NameHint), ext) {
				return d
			}
		}
	}

	return DomainDocuments
}
