//go:build !integration

package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain/model"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestFilterReferences(t *testing.T) {
	t.Run("drops svg by mime type", func(t *testing.T) {
		refs := []model.ReferenceImage{
			{URL: "https://example.com/a.png"},
			{URL: "https://example.com/b", MimeType: "image/svg+xml"},
		}
		kept := filterReferences(refs, testLogger())
		if len(kept) != 1 || kept[0].URL != "https://example.com/a.png" {
			t.Fatalf("expected only the png reference, got %v", kept)
		}
	})

	t.Run("drops svg by url extension", func(t *testing.T) {
		refs := []model.ReferenceImage{
			{URL: "https://example.com/logo.SVG?v=2"},
			{URL: "https://example.com/photo.jpg"},
		}
		kept := filterReferences(refs, testLogger())
		if len(kept) != 1 || kept[0].URL != "https://example.com/photo.jpg" {
			t.Fatalf("expected only the jpg reference, got %v", kept)
		}
	})

	t.Run("all-svg list filters to empty", func(t *testing.T) {
		refs := []model.ReferenceImage{
			{URL: "https://example.com/a.svg"},
			{MimeType: "image/svg+xml", Data: []byte("<svg/>")},
		}
		if kept := filterReferences(refs, testLogger()); len(kept) != 0 {
			t.Fatalf("expected empty list, got %d entries", len(kept))
		}
	})

	t.Run("caps list at the maximum", func(t *testing.T) {
		refs := make([]model.ReferenceImage, model.MaxReferenceImages+5)
		for i := range refs {
			refs[i] = model.ReferenceImage{URL: fmt.Sprintf("https://example.com/%d.png", i)}
		}
		if kept := filterReferences(refs, testLogger()); len(kept) != model.MaxReferenceImages {
			t.Fatalf("expected %d references, got %d", model.MaxReferenceImages, len(kept))
		}
	})
}

func TestStyleHints(t *testing.T) {
	refs := []model.ReferenceImage{
		{URL: "a.png", StyleHint: "watercolor"},
		{URL: "b.png"},
		{URL: "c.png", StyleHint: "  soft lighting "},
	}
	if got := styleHints(refs); got != "watercolor, soft lighting" {
		t.Fatalf("styleHints = %q", got)
	}
	if got := styleHints(nil); got != "" {
		t.Fatalf("expected empty hints, got %q", got)
	}
}

func TestReferenceFetcher_Resolve(t *testing.T) {
	small := bytes.Repeat([]byte{0xAB}, 128)
	big := bytes.Repeat([]byte{0xCD}, maxReferenceBytes+1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(small)
		case "/big.png":
			// Honest Content-Length, so the HEAD probe rejects it.
			w.Header().Set("Content-Type", "image/png")
			w.Write(big)
		case "/lying.png":
			// HEAD reports nothing useful; the body itself is oversized,
			// so the second gate has to catch it.
			if r.Method == http.MethodHead {
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write(big)
		case "/missing.png":
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newReferenceFetcher(5*time.Second, testLogger())
	ctx := context.Background()

	t.Run("downloads url references", func(t *testing.T) {
		parts := f.resolve(ctx, []model.ReferenceImage{
			{URL: srv.URL + "/small.png", Label: "pose"},
		})
		if len(parts) != 1 {
			t.Fatalf("expected 1 part, got %d", len(parts))
		}
		if !bytes.Equal(parts[0].Data, small) || parts[0].MimeType != "image/png" || parts[0].Label != "pose" {
			t.Fatalf("unexpected part: label=%q mime=%q size=%d", parts[0].Label, parts[0].MimeType, len(parts[0].Data))
		}
	})

	t.Run("probe gate skips oversized reference", func(t *testing.T) {
		parts := f.resolve(ctx, []model.ReferenceImage{{URL: srv.URL + "/big.png"}})
		if len(parts) != 0 {
			t.Fatalf("expected oversized reference to be skipped, got %d parts", len(parts))
		}
	})

	t.Run("size re-check skips oversized body", func(t *testing.T) {
		parts := f.resolve(ctx, []model.ReferenceImage{{URL: srv.URL + "/lying.png"}})
		if len(parts) != 0 {
			t.Fatalf("expected oversized body to be skipped, got %d parts", len(parts))
		}
	})

	t.Run("fetch error skips without aborting the rest", func(t *testing.T) {
		parts := f.resolve(ctx, []model.ReferenceImage{
			{URL: srv.URL + "/missing.png"},
			{URL: srv.URL + "/small.png"},
		})
		if len(parts) != 1 {
			t.Fatalf("expected the surviving reference only, got %d parts", len(parts))
		}
	})

	t.Run("inline bytes bypass download", func(t *testing.T) {
		parts := f.resolve(ctx, []model.ReferenceImage{
			{Data: small, MimeType: "image/jpeg", Label: "subject"},
		})
		if len(parts) != 1 || parts[0].MimeType != "image/jpeg" {
			t.Fatalf("unexpected parts: %v", parts)
		}
	})

	t.Run("oversized inline bytes are skipped", func(t *testing.T) {
		parts := f.resolve(ctx, []model.ReferenceImage{{Data: big, MimeType: "image/png"}})
		if len(parts) != 0 {
			t.Fatalf("expected oversized inline reference to be skipped, got %d parts", len(parts))
		}
	})
}
