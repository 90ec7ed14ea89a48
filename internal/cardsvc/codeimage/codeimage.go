// Package codeimage renders the QR code printed on every card.
package codeimage

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 256

type Generator struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewGenerator(size int) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{Size: size, Level: qrcode.Medium}
}

// Render encodes payload as a PNG. The same payload always yields the same image.
func (g *Generator) Render(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("empty code image payload")
	}
	png, err := qrcode.Encode(payload, g.Level, g.Size)
	if err != nil {
		return nil, fmt.Errorf("encode code image: %w", err)
	}
	return png, nil
}
