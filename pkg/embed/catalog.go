package embed

import (
	"fmt"
	"strings"

	"github.com/XiaoConstantine/bmark/pkg/server"
)

// ModelSpec describes a supported embedding model. Dimensions is what the
// model card declares; the loaded model is probed for the real value.
type ModelSpec struct {
	Name       string
	Dimensions int
	File       server.Artifact
}

// DefaultModel is used when no model is configured.
const DefaultModel = "nomic-embed-text-v1.5"

var catalog = []ModelSpec{
	{
		Name:       "nomic-embed-text-v1.5",
		Dimensions: 768,
		File: server.Artifact{
			FileName: "nomic-embed-text-v1.5.Q8_0.gguf",
			URL:      "https://huggingface.co/nomic-ai/nomic-embed-text-v1.5-GGUF/resolve/main/nomic-embed-text-v1.5.Q8_0.gguf",
			MinSize:  100_000_000,
		},
	},
	{
		Name:       "all-minilm-l6-v2",
		Dimensions: 384,
		File: server.Artifact{
			FileName: "all-MiniLM-L6-v2-Q8_0.gguf",
			URL:      "https://huggingface.co/second-state/All-MiniLM-L6-v2-Embedding-GGUF/resolve/main/all-MiniLM-L6-v2-Q8_0.gguf",
			MinSize:  20_000_000,
		},
	},
	{
		Name:       "bge-small-en-v1.5",
		Dimensions: 384,
		File: server.Artifact{
			FileName: "bge-small-en-v1.5-q8_0.gguf",
			URL:      "https://huggingface.co/CompendiumLabs/bge-small-en-v1.5-gguf/resolve/main/bge-small-en-v1.5-q8_0.gguf",
			MinSize:  30_000_000,
		},
	},
	{
		Name:       "mxbai-embed-large-v1",
		Dimensions: 1024,
		File: server.Artifact{
			FileName: "mxbai-embed-large-v1.Q8_0.gguf",
			URL:      "https://huggingface.co/ChristianAzinn/mxbai-embed-large-v1-gguf/resolve/main/mxbai-embed-large-v1.Q8_0.gguf",
			MinSize:  300_000_000,
		},
	},
}

// ResolveModel looks a model up by name, ignoring case. An empty name
// resolves to DefaultModel.
func ResolveModel(name string) (ModelSpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultModel
	}
	for _, spec := range catalog {
		if strings.EqualFold(spec.Name, name) {
			return spec, nil
		}
	}
	return ModelSpec{}, fmt.Errorf("%w: %q (supported: %s)", ErrInvalidModel, name, strings.Join(SupportedModels(), ", "))
}

// SupportedModels lists catalogue names in declaration order.
func SupportedModels() []string {
	names := make([]string, len(catalog))
	for i, spec := range catalog {
		names[i] = spec.Name
	}
	return names
}
