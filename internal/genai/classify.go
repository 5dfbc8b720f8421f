package genai

// Kind tags the classification of a stream chunk.
type Kind int

const (
	KindIgnored Kind = iota
	KindInlineImage
	KindExternalRef
	KindText
)

// Classification is the tagged result of classifying one chunk. Only
// the fields matching Kind are populated.
type Classification struct {
	Kind Kind
	MIME string // inline image MIME type
	Data string // inline image base64 payload
	URL  string // hosted URI of an external reference
	Text string // plain text content
}

// Classify inspects the first content part of a chunk and yields
// exactly one classification. Checks run in fixed priority order:
// inline binary, then hosted-URI candidates, then chunk-level text.
// A chunk is never double-counted; anything else is ignored.
func Classify(c *Chunk) Classification {
	if p := c.FirstPart(); p != nil {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return Classification{
				Kind: KindInlineImage,
				MIME: p.InlineData.MIMEType,
				Data: p.InlineData.Data,
			}
		}
		if u := p.hostedURI(); u != "" {
			return Classification{Kind: KindExternalRef, URL: u}
		}
	}

	if t := c.PlainText(); t != "" {
		return Classification{Kind: KindText, Text: t}
	}

	return Classification{Kind: KindIgnored}
}
