// Package image knows how to load and describe guest images.
//
// A guest image is a small YAML manifest that names the guest program
// the isolation runtime loads (the entrypoint) and the ABI the program speaks.
package image

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"gopkg.in/yaml.v3"

	"github.com/slok/scriptbox/internal/model"
)

const (
	// MediaType is the media type of guest image manifests.
	MediaType = "application/vnd.scriptbox.guest.v1+yaml"
	// APIVersion is the supported manifest API version.
	APIVersion = "scriptbox.dev/v1"
	// Kind is the supported manifest kind.
	Kind = "GuestImage"
	// ABIVersion is the call ABI version the host speaks.
	ABIVersion = 1
)

//go:embed jshost.yaml
var defaultImage []byte

// Default returns the default guest image, the JavaScript interpreter guest.
func Default() []byte {
	return bytes.Clone(defaultImage)
}

// Manifest is a parsed guest image.
type Manifest struct {
	APIVersion    string            `yaml:"apiVersion"`
	Kind          string            `yaml:"kind"`
	Name          string            `yaml:"name"`
	Entrypoint    string            `yaml:"entrypoint"`
	ABIVersion    int               `yaml:"abiVersion"`
	MinStackSize  uint64            `yaml:"minStackSize"`
	Functions     []string          `yaml:"functions"`
	HostFunctions []string          `yaml:"hostFunctions"`
	Annotations   map[string]string `yaml:"annotations"`
}

func (m Manifest) validate() error {
	if m.APIVersion != APIVersion {
		return fmt.Errorf("unsupported api version %q", m.APIVersion)
	}
	if m.Kind != Kind {
		return fmt.Errorf("unsupported kind %q", m.Kind)
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if m.ABIVersion != ABIVersion {
		return fmt.Errorf("unsupported abi version %d", m.ABIVersion)
	}
	if len(m.Functions) == 0 {
		return fmt.Errorf("at least one guest function is required")
	}

	return nil
}

// Parse parses and validates a guest image.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty image: %w", model.ErrNotValid)
		}
		return nil, fmt.Errorf("could not decode image: %w: %w", model.ErrNotValid, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid image: %w: %w", model.ErrNotValid, err)
	}

	return &m, nil
}

// Describe returns the content descriptor of a guest image.
func Describe(data []byte, m *Manifest) ocispec.Descriptor {
	annotations := map[string]string{
		ocispec.AnnotationTitle: m.Name,
	}
	for k, v := range m.Annotations {
		annotations[k] = v
	}

	return ocispec.Descriptor{
		MediaType:   MediaType,
		Digest:      digest.FromBytes(data),
		Size:        int64(len(data)),
		Annotations: annotations,
	}
}

// HasFunction returns true if the image exports the guest function.
func (m Manifest) HasFunction(name string) bool {
	for _, f := range m.Functions {
		if f == name {
			return true
		}
	}
	return false
}
