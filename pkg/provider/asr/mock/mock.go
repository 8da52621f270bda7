// Package mock provides a test double for the asr.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/maplecivic/hansardflow/pkg/provider/asr"
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of TranscribeFile.
type TranscribeCall struct {
	// Path is the audio file path passed to TranscribeFile.
	Path string
	// Opts are the options passed to TranscribeFile.
	Opts asr.Options
}

// Provider is a mock implementation of asr.Provider.
// Results can be keyed by language so bilingual transcription tests can
// return distinct EN and FR transcripts from the same provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by TranscribeFile when ResultsByLanguage has no
	// entry for the requested language.
	Result *asr.Result

	// ResultsByLanguage maps an ISO 639-1 code to the result returned for
	// requests in that language.
	ResultsByLanguage map[string]*asr.Result

	// Err, if non-nil, is returned as the error from TranscribeFile.
	Err error

	// Calls records every invocation of TranscribeFile in order.
	Calls []TranscribeCall
}

// TranscribeFile records the call and returns the configured result or error.
func (p *Provider) TranscribeFile(_ context.Context, path string, opts asr.Options) (*asr.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, TranscribeCall{Path: path, Opts: opts})
	if p.Err != nil {
		return nil, p.Err
	}
	if r, ok := p.ResultsByLanguage[opts.Language]; ok {
		return r, nil
	}
	return p.Result, nil
}
