package model

import "strings"

// PayloadKind 区分 base64 图片数据与远程链接
type PayloadKind int

const (
	PayloadBase64 PayloadKind = iota + 1
	PayloadURL
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadBase64:
		return "base64"
	case PayloadURL:
		return "url"
	default:
		return "unknown"
	}
}

// Base64ImagePrefixes identify an image encoding from the start of its
// base64 form. JPEG: /9j/  PNG: iVBORw  WEBP: UklGR  GIF: R0lGOD
var Base64ImagePrefixes = []string{"iVBORw", "/9j/", "UklGR", "R0lGOD"}

// Payload is the image a generation produced, either inline base64 or a
// link that still has to be downloaded.
type Payload struct {
	Kind PayloadKind
	Data string
	// Strategy names the extraction rule that produced the payload, empty
	// when the provider returned a structured field.
	Strategy string
}

// HasBase64Prefix reports whether s starts with a known image signature.
func HasBase64Prefix(s string) bool {
	for _, prefix := range Base64ImagePrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// ClassifyRef 是根据前缀判断类型的唯一入口：带图片签名前缀的视为 base64，其余视为 URL
func ClassifyRef(ref string) Payload {
	if HasBase64Prefix(ref) {
		return Base64Payload(ref, "")
	}
	return URLPayload(ref, "")
}

func Base64Payload(data, strategy string) Payload {
	return Payload{Kind: PayloadBase64, Data: data, Strategy: strategy}
}

func URLPayload(url, strategy string) Payload {
	return Payload{Kind: PayloadURL, Data: url, Strategy: strategy}
}

// MimeFromBase64 guesses the mime type of base64 image data from its
// signature prefix, defaulting to png.
func MimeFromBase64(data string) string {
	switch {
	case strings.HasPrefix(data, "/9j/"):
		return "image/jpeg"
	case strings.HasPrefix(data, "UklGR"):
		return "image/webp"
	case strings.HasPrefix(data, "R0lGOD"):
		return "image/gif"
	default:
		return "image/png"
	}
}

// DataURI wraps raw base64 image data into a data URI; input that already
// is a data URI is returned as is.
func DataURI(data string) string {
	if strings.HasPrefix(data, "data:") {
		return data
	}
	return "data:" + MimeFromBase64(data) + ";base64," + data
}
