package prompt

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// Image is a frame loaded for a multimodal request.
type Image struct {
	Path     string
	MIMEType string
	Data     []byte
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// LoadImages reads frame files in order.
func LoadImages(paths []string) ([]Image, error) {
	out := make([]Image, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", filepath.Base(p), err)
		}
		out = append(out, Image{Path: p, MIMEType: mimeType(p), Data: data})
	}
	return out, nil
}

func mimeType(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
