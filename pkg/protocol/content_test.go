package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentBlock_Constructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ContentBlock{Type: ContentText, Text: "hi"}, NewTextContent("hi"))
	assert.Equal(t, ContentBlock{Type: ContentImage, Data: "ZGF0YQ==", MimeType: "image/png"},
		NewImageContent("ZGF0YQ==", "image/png"))
	assert.Equal(t, ContentBlock{Type: ContentAudio, Data: "ZGF0YQ==", MimeType: "audio/wav"},
		NewAudioContent("ZGF0YQ==", "audio/wav"))

	res := EmbeddedResource{URI: "file:///a.txt", Text: "contents"}
	block := NewEmbeddedResourceContent(res)
	assert.Equal(t, ContentResource, block.Type)
	assert.Equal(t, &res, block.Resource)
}

func TestContentBlock_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		block   ContentBlock
		wantErr bool
	}{
		{"text always valid", NewTextContent(""), false},
		{"image with data and mime", NewImageContent("ZGF0YQ==", "image/png"), false},
		{"image missing data", ContentBlock{Type: ContentImage, MimeType: "image/png"}, true},
		{"image missing mime", ContentBlock{Type: ContentImage, Data: "ZGF0YQ=="}, true},
		{"audio missing data", ContentBlock{Type: ContentAudio}, true},
		{"resource with pointer", NewEmbeddedResourceContent(EmbeddedResource{URI: "x"}), false},
		{"resource missing pointer", ContentBlock{Type: ContentResource}, true},
		{"unknown type", ContentBlock{Type: "bogus"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.block.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
