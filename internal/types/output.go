package types

// RenderedOutput is a finished preview document. Fingerprint changes only when
// the document bytes change, so hosts remount the preview only then.
type RenderedOutput struct {
	Document    string `json:"document"`
	Fingerprint string `json:"fingerprint"`
}

// IsZero reports whether no document has been produced.
func (r RenderedOutput) IsZero() bool {
	return r.Document == "" && r.Fingerprint == ""
}
