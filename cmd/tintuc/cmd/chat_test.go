package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadImagesDetectsType(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "a.png")
	// PNG signature followed by an IHDR chunk header.
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := loadImages([]string{png})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Image.MIMEType != "image/png" || !filepath.IsAbs(got[0].Ref) {
		t.Fatalf("unexpected attachment %+v", got)
	}

	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadImages([]string{txt}); err == nil {
		t.Fatalf("expected non-image to be rejected")
	}
}
