package assembly

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"mirage/internal/experience"
)

var mediaAttr = regexp.MustCompile(`\b(?:src|href)="([^"]+)"|url\("([^"]+)"\)`)

// Verify checks a bundle directory in place: the manifest parses, its
// timeline is valid, and every media reference in the manifest and the page
// resolves inside dir. It holds for a bundle copied to any location.
func Verify(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, experience.ManifestFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := manifest.Timeline.Validate(); err != nil {
		return Manifest{}, err
	}
	var errs []error
	for _, ref := range manifest.Media.Files() {
		if err := checkReference(dir, ref); err != nil {
			errs = append(errs, err)
		}
	}

	html, err := os.ReadFile(filepath.Join(dir, experience.PageFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("read page: %w", err)
	}
	refs := PageReferences(html)
	if len(refs) == 0 {
		errs = append(errs, errors.New("page references no media"))
	}
	for _, ref := range refs {
		if err := checkReference(dir, ref); err != nil {
			errs = append(errs, err)
		}
	}
	return manifest, errors.Join(errs...)
}

// PageReferences extracts src, href, and CSS url() targets from page markup.
func PageReferences(html []byte) []string {
	var refs []string
	for _, m := range mediaAttr.FindAllSubmatch(html, -1) {
		ref := string(m[1])
		if ref == "" {
			ref = string(m[2])
		}
		refs = append(refs, ref)
	}
	return refs
}
