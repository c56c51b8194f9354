package comfy

import (
	"path"
	"sort"
	"strings"
)

// Artifact describes one output file produced by a completed job. Type is the
// remote's storage class: "input", "output" or "temp".
type Artifact struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ArtifactKind classifies artifacts by filename extension.
type ArtifactKind string

const (
	KindImage ArtifactKind = "image"
	KindVideo ArtifactKind = "video"
	KindOther ArtifactKind = "other"
)

// Kind reports the artifact's media category.
func (a Artifact) Kind() ArtifactKind {
	switch strings.ToLower(path.Ext(a.Filename)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp":
		return KindImage
	case ".mp4", ".webm", ".mov", ".avi", ".mkv":
		return KindVideo
	default:
		return KindOther
	}
}

// NodeOutput is the per-node output record inside a job's history entry.
type NodeOutput struct {
	Images []Artifact `json:"images,omitempty"`
	Gifs   []Artifact `json:"gifs,omitempty"`
}

// ImageArtifacts flattens a job's outputs into image artifacts, ordered by
// node id so repeated calls over the same record agree. Animation nodes
// report under "gifs"; their image-typed entries count too.
func ImageArtifacts(outputs map[string]NodeOutput) []Artifact {
	nodeIDs := make([]string, 0, len(outputs))
	for id := range outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	var artifacts []Artifact
	for _, id := range nodeIDs {
		node := outputs[id]
		for _, a := range append(append([]Artifact(nil), node.Images...), node.Gifs...) {
			if a.Kind() == KindImage {
				artifacts = append(artifacts, a)
			}
		}
	}
	return artifacts
}
