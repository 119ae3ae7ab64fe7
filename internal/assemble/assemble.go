// Package assemble turns a successful build artifact into the final preview
// document and its output fingerprint.
package assemble

import (
	"context"
	"fmt"

	"github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/fingerprint"
	"github.com/conneroisu/srcdoc/internal/preset"
	"github.com/conneroisu/srcdoc/internal/types"
)

// Assemble materializes artifact with the preset's own rule. Identical inputs
// always produce an identical document and fingerprint. A panicking
// materializer is reported as an error.
func Assemble(ctx context.Context, p preset.Preset, artifact []byte, options types.Options) (out types.RenderedOutput, err error) {
	if p.Materialize == nil {
		return types.RenderedOutput{}, errors.NewInternalError(errors.ErrCodeRenderFailed,
			fmt.Sprintf("preset %q cannot materialize documents", p.Name), nil)
	}

	defer func() {
		if r := recover(); r != nil {
			out = types.RenderedOutput{}
			err = errors.NewInternalError(errors.ErrCodeRenderFailed,
				"document assembly panicked", fmt.Errorf("%v", r)).WithComponent(p.Name)
		}
	}()

	document, err := p.Materialize(ctx, artifact, options)
	if err != nil {
		return types.RenderedOutput{}, errors.NewInternalError(errors.ErrCodeRenderFailed,
			"document assembly failed", err).WithComponent(p.Name)
	}

	return types.RenderedOutput{
		Document:    document,
		Fingerprint: fingerprint.Document(document),
	}, nil
}
