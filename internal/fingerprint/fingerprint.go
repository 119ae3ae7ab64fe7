// Package fingerprint computes the digests that key the artifact cache and
// identify rendered documents.
//
// Every digest is a BLAKE3 keyed hash. The key selects a domain (whole build,
// single compilation unit, final document) so equal input bytes hashed in two
// different roles never produce the same fingerprint. Structured inputs are
// encoded with deterministic CBOR before hashing, which makes the digest
// independent of map iteration order.
package fingerprint

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/conneroisu/srcdoc/internal/codec"
	"github.com/conneroisu/srcdoc/internal/types"
)

type domainKey [32]byte

// Domain keys are the ASCII domain name zero-padded to 32 bytes. Changing one
// invalidates every fingerprint in that domain.
var (
	buildDomainKey = domainKey{
		's', 'r', 'c', 'd', 'o', 'c', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i',
		'n', 't', '.', 'b', 'u', 'i', 'l', 'd', 0, 0, 0, 0, 0, 0, 0, 0,
	}

	unitDomainKey = domainKey{
		's', 'r', 'c', 'd', 'o', 'c', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i',
		'n', 't', '.', 'u', 'n', 'i', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	documentDomainKey = domainKey{
		's', 'r', 'c', 'd', 'o', 'c', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i',
		'n', 't', '.', 'd', 'o', 'c', 'u', 'm', 'e', 'n', 't', 0, 0, 0, 0, 0,
	}
)

// PresetIdentity is the part of a preset that participates in fingerprints.
type PresetIdentity struct {
	Name    string
	Version string
}

// buildInput is the canonical shape hashed for a whole build. Field names are
// fixed so that renaming Go identifiers never changes fingerprints.
type buildInput struct {
	Preset  string            `cbor:"preset"`
	Version string            `cbor:"version"`
	Files   map[string]string `cbor:"files"`
	Options map[string]any    `cbor:"options"`
}

type unitInput struct {
	Preset  string         `cbor:"preset"`
	Version string         `cbor:"version"`
	Path    string         `cbor:"path"`
	Content string         `cbor:"content"`
	Options map[string]any `cbor:"options"`
}

// Build returns the fingerprint of a complete build request. It covers the
// preset identity, every path with its content, and every option.
func Build(preset PresetIdentity, files types.FileSet, opts types.Options) (string, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return "", fmt.Errorf("fingerprint options: %w", err)
	}

	input := buildInput{
		Preset:  preset.Name,
		Version: preset.Version,
		Files:   map[string]string(files),
		Options: map[string]any(normalized),
	}
	if input.Files == nil {
		input.Files = map[string]string{}
	}

	return hashValue(buildDomainKey, input)
}

// Unit returns the fingerprint of a single compilation unit. Options are
// included because they may change how the unit is transformed.
func Unit(preset PresetIdentity, path, content string, opts types.Options) (string, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return "", fmt.Errorf("fingerprint options: %w", err)
	}

	return hashValue(unitDomainKey, unitInput{
		Preset:  preset.Name,
		Version: preset.Version,
		Path:    path,
		Content: content,
		Options: map[string]any(normalized),
	})
}

// Document returns the fingerprint of final document bytes. Two inputs that
// compile to the same document share a document fingerprint even when their
// build fingerprints differ.
func Document(document string) string {
	return hex.EncodeToString(keyedHash(documentDomainKey, []byte(document)))
}

func hashValue(key domainKey, v any) (string, error) {
	encoded, err := codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint encode: %w", err)
	}

	return hex.EncodeToString(keyedHash(key, encoded)), nil
}

func keyedHash(key domainKey, data []byte) []byte {
	// NewKeyed only fails for keys that are not 32 bytes long.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)

	return hasher.Sum(nil)
}
