package image_test

import (
	"errors"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptbox/internal/abi"
	"github.com/slok/scriptbox/internal/image"
	"github.com/slok/scriptbox/internal/model"
)

func TestParse(t *testing.T) {
	tests := map[string]struct {
		data   []byte
		expErr bool
		expEP  string
	}{
		"The default image should be valid.": {
			data:  image.Default(),
			expEP: "jshost",
		},

		"An empty image should fail.": {
			data:   []byte(""),
			expErr: true,
		},

		"A non YAML image should fail.": {
			data:   []byte("\x00\x01\x02{{{"),
			expErr: true,
		},

		"Unknown fields should fail.": {
			data: []byte(`apiVersion: scriptbox.dev/v1
kind: GuestImage
name: test
entrypoint: jshost
abiVersion: 1
functions: [ExecuteScript]
unknown: true
`),
			expErr: true,
		},

		"An unsupported ABI version should fail.": {
			data: []byte(`apiVersion: scriptbox.dev/v1
kind: GuestImage
name: test
entrypoint: jshost
abiVersion: 2
functions: [ExecuteScript]
`),
			expErr: true,
		},

		"A missing entrypoint should fail.": {
			data: []byte(`apiVersion: scriptbox.dev/v1
kind: GuestImage
name: test
abiVersion: 1
functions: [ExecuteScript]
`),
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			m, err := image.Parse(test.data)

			if test.expErr {
				assert.Error(err)
				assert.True(errors.Is(err, model.ErrNotValid))
			} else if assert.NoError(err) {
				assert.Equal(test.expEP, m.Entrypoint)
			}
		})
	}
}

func TestDefaultImageFunctions(t *testing.T) {
	m, err := image.Parse(image.Default())
	require.NoError(t, err)

	for _, f := range []string{abi.FuncInitializeInterpreter, abi.FuncExecuteScript, abi.FuncInterpreterStatus} {
		assert.True(t, m.HasFunction(f), f)
	}
	assert.False(t, m.HasFunction(abi.FuncHostPrint))
}

func TestDescribe(t *testing.T) {
	data := image.Default()
	m, err := image.Parse(data)
	require.NoError(t, err)

	desc := image.Describe(data, m)

	assert.Equal(t, image.MediaType, desc.MediaType)
	assert.Equal(t, digest.FromBytes(data), desc.Digest)
	assert.Equal(t, int64(len(data)), desc.Size)
	assert.Equal(t, "jshost", desc.Annotations[ocispec.AnnotationTitle])
	assert.NoError(t, desc.Digest.Validate())
}
