package protocol

import "fmt"

// ContentKind tags the concrete shape of a ContentBlock.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentImage    ContentKind = "image"
	ContentAudio    ContentKind = "audio"
	ContentResource ContentKind = "resource"
)

// ContentBlock is the sum type {Text, Image, Audio, EmbeddedResource} used
// in tool results, sampling messages, and prompt messages
type ContentBlock struct {
	Type ContentKind `json:"type"`

	// Text is set when Type == ContentText.
	Text string `json:"text,omitempty"`

	// Data is the base64-encoded payload for ContentImage/ContentAudio.
	Data string `json:"data,omitempty"`
	// MimeType describes Data's content type for ContentImage/ContentAudio,
	// or Resource's content type.
	MimeType string `json:"mimeType,omitempty"`

	// Resource is set when Type == ContentResource.
	Resource *EmbeddedResource `json:"resource,omitempty"`
}

// EmbeddedResource carries a resource's contents inline within a
// ContentBlock of type "resource".
type EmbeddedResource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// NewTextContent builds a text ContentBlock.
func NewTextContent(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// NewImageContent builds an image ContentBlock from base64 data.
func NewImageContent(base64Data, mimeType string) ContentBlock {
	return ContentBlock{Type: ContentImage, Data: base64Data, MimeType: mimeType}
}

// NewAudioContent builds an audio ContentBlock from base64 data.
func NewAudioContent(base64Data, mimeType string) ContentBlock {
	return ContentBlock{Type: ContentAudio, Data: base64Data, MimeType: mimeType}
}

// NewEmbeddedResourceContent builds a resource ContentBlock.
func NewEmbeddedResourceContent(res EmbeddedResource) ContentBlock {
	return ContentBlock{Type: ContentResource, Resource: &res}
}

// Validate checks that the block's required fields for its Type are set.
func (c ContentBlock) Validate() error {
	switch c.Type {
	case ContentText:
		return nil
	case ContentImage, ContentAudio:
		if c.Data == "" || c.MimeType == "" {
			return fmt.Errorf("protocol: %s content requires data and mimeType", c.Type)
		}
		return nil
	case ContentResource:
		if c.Resource == nil {
			return fmt.Errorf("protocol: resource content requires a resource")
		}
		return nil
	default:
		return fmt.Errorf("protocol: unknown content type %q", c.Type)
	}
}
