// Package prompts holds the default prompt bodies agents seed into their
// settings at creation time. Bodies are Go text templates; the variables
// they reference are rendered per turn by the settings resolver.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed defaults
var defaults embed.FS

// ErrResourceNotFound is returned when a default prompt resource is missing.
// This is a configuration error, fatal at agent creation time.
var ErrResourceNotFound = errors.New("prompt resource not found")

// Default returns the default prompt body for a resource name such as
// "adaptive_rag/execution_system_prompt".
func Default(name string) (string, error) {
	data, err := defaults.ReadFile("defaults/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	return strings.TrimSpace(string(data)), nil
}
