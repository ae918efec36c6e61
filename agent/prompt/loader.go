package prompt

import (
	_ "embed"
	"strings"
)

//go:embed template/kiosk.txt
var kioskRaw string

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Kiosk string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Kiosk: strings.TrimSpace(kioskRaw),
	}
}
