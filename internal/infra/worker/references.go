package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/domain/ports/adapter"
	"canvas-imagegen/internal/infra/metrics"
)

// maxReferenceBytes is the hard cap on a single reference image. Anything
// larger is skipped, never fetched into memory.
const maxReferenceBytes = 4 << 20

var errReferenceTooLarge = errors.New("reference image exceeds the size cap")

// isSVGReference reports whether the reference points at a vector image,
// which the external service cannot consume.
func isSVGReference(ref model.ReferenceImage) bool {
	if strings.EqualFold(ref.MimeType, "image/svg+xml") {
		return true
	}
	if ref.URL == "" {
		return false
	}
	u, err := url.Parse(ref.URL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".svg")
}

// filterReferences drops SVG references and caps the list at the model
// maximum. It runs once per job, before the per-image loop.
func filterReferences(refs []model.ReferenceImage, log *zerolog.Logger) []model.ReferenceImage {
	kept := make([]model.ReferenceImage, 0, len(refs))
	for _, ref := range refs {
		if isSVGReference(ref) {
			metrics.IncReferenceSkipped("svg")
			log.Debug().Str("url", ref.URL).Msg("skipping svg reference")
			continue
		}
		kept = append(kept, ref)
		if len(kept) == model.MaxReferenceImages {
			break
		}
	}
	return kept
}

// styleHints concatenates the style hints carried by the references, in
// order, for appending to the prompt text.
func styleHints(refs []model.ReferenceImage) string {
	var hints []string
	for _, ref := range refs {
		if strings.TrimSpace(ref.StyleHint) != "" {
			hints = append(hints, strings.TrimSpace(ref.StyleHint))
		}
	}
	return strings.Join(hints, ", ")
}

type referenceFetcher struct {
	client *http.Client
	log    *zerolog.Logger
}

func newReferenceFetcher(timeout time.Duration, logger *zerolog.Logger) *referenceFetcher {
	fetchLog := logger.With().Str("component", "referenceFetcher").Logger()
	return &referenceFetcher{
		client: &http.Client{Timeout: timeout},
		log:    &fetchLog,
	}
}

// resolve turns the job's references into request parts, downloading URL
// references. A reference that fails any gate (probe size, downloaded
// size, fetch error) is skipped and logged; the job proceeds without it.
func (f *referenceFetcher) resolve(ctx context.Context, refs []model.ReferenceImage) []adapter.ReferencePart {
	parts := make([]adapter.ReferencePart, 0, len(refs))
	for _, ref := range refs {
		if len(ref.Data) > 0 {
			if len(ref.Data) > maxReferenceBytes {
				metrics.IncReferenceSkipped("too_large")
				f.log.Warn().Int("size", len(ref.Data)).Msg("skipping oversized inline reference")
				continue
			}
			parts = append(parts, adapter.ReferencePart{Label: ref.Label, Data: ref.Data, MimeType: ref.MimeType})
			continue
		}
		data, mime, err := f.download(ctx, ref.URL)
		if err != nil {
			if errors.Is(err, errReferenceTooLarge) {
				metrics.IncReferenceSkipped("too_large")
			} else {
				metrics.IncReferenceSkipped("fetch_error")
			}
			f.log.Warn().Err(err).Str("url", ref.URL).Msg("skipping reference")
			continue
		}
		if ref.MimeType != "" {
			mime = ref.MimeType
		}
		parts = append(parts, adapter.ReferencePart{Label: ref.Label, Data: data, MimeType: mime})
	}
	return parts
}

// download probes the content length first, then re-checks the actual
// size while reading. Both gates enforce maxReferenceBytes.
func (f *referenceFetcher) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	head, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	if resp, err := f.client.Do(head); err == nil {
		resp.Body.Close()
		if resp.ContentLength > maxReferenceBytes {
			return nil, "", fmt.Errorf("%w: probe reports %d bytes", errReferenceTooLarge, resp.ContentLength)
		}
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.client.Do(get)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("reference fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxReferenceBytes {
		return nil, "", fmt.Errorf("%w: body larger than %d bytes", errReferenceTooLarge, maxReferenceBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
