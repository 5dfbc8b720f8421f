package genai

import "strings"

// Part is one content part of a request or response. Exactly one of
// the payload fields is expected to be set; the response side also
// carries the hosted-URI variants some response shapes use.
type Part struct {
	Text       string    `json:"text,omitempty"`
	InlineData *Blob     `json:"inlineData,omitempty"`
	FileData   *FileData `json:"fileData,omitempty"`
	URI        string    `json:"uri,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
}

// Blob carries inline base64-encoded binary data.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData references hosted content. Response variants disagree on
// the URI field name, so both are modeled.
type FileData struct {
	FileURI  string `json:"fileUri,omitempty"`
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// hostedURI probes the URI field candidates in fixed priority order
// and returns the first non-empty one.
func (p *Part) hostedURI() string {
	if p.FileData != nil {
		if p.FileData.FileURI != "" {
			return p.FileData.FileURI
		}
		if p.FileData.URI != "" {
			return p.FileData.URI
		}
	}
	if p.URI != "" {
		return p.URI
	}
	return p.ImageURL
}

// Content is an ordered list of parts attributed to a role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Candidate is one response candidate.
type Candidate struct {
	Content Content `json:"content"`
}

// Chunk is a single element of the response stream. It exposes zero or
// more parts and/or a chunk-level plain-text field.
type Chunk struct {
	Candidates []Candidate `json:"candidates,omitempty"`
	Text       string      `json:"text,omitempty"`
}

// FirstPart returns the first content part of the first candidate, or
// nil when the chunk carries none. Classification only ever inspects
// the first part.
func (c *Chunk) FirstPart() *Part {
	if len(c.Candidates) == 0 || len(c.Candidates[0].Content.Parts) == 0 {
		return nil
	}
	return &c.Candidates[0].Content.Parts[0]
}

// PlainText returns the chunk-level text field, falling back to the
// concatenated text of the first candidate's parts.
func (c *Chunk) PlainText() string {
	if c.Text != "" {
		return c.Text
	}
	if len(c.Candidates) == 0 {
		return ""
	}

	var b strings.Builder
	for _, p := range c.Candidates[0].Content.Parts {
		if p.InlineData == nil && p.hostedURI() == "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// TextPart builds a plain-text request part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// InlinePart builds an inline binary request part from raw bytes.
func InlinePart(mimeType string, data []byte) Part {
	return Part{InlineData: &Blob{MIMEType: mimeType, Data: encodeBase64(data)}}
}
