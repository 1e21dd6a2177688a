package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

func selectReference(ref string) (string, error) {
	if ref == "" {
		return "", &InputError{Err: ErrNoImage}
	}

	info, err := os.Stat(ref)
	if err != nil {
		return "", &InputError{Err: fmt.Errorf("%w: %v", ErrNoImage, err)}
	}
	if info.Mode().IsRegular() {
		return ref, nil
	}
	if !info.IsDir() {
		return "", &InputError{Err: fmt.Errorf("%w: %s is not a file or directory", ErrNoImage, ref)}
	}

	// ReadDir sorts by file name.
	entries, err := os.ReadDir(ref)
	if err != nil {
		return "", &InputError{Err: fmt.Errorf("%w: %v", ErrNoImage, err)}
	}
	files := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".")
	})
	if len(files) == 0 {
		return "", &InputError{Err: fmt.Errorf("%w: %s is empty", ErrNoImage, ref)}
	}
	return filepath.Join(ref, files[0].Name()), nil
}

// loadReference decodes the image at path and stretches it to width x height, returning PNG
// bytes. Aspect ratio is not preserved.
func loadReference(path string, width, height int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Err: fmt.Errorf("opening reference image: %w", err)}
	}
	defer f.Close()

	src, _, err := stdimage.Decode(f)
	if err != nil {
		return nil, &InputError{Err: fmt.Errorf("decoding reference image %s: %w", filepath.Base(path), err)}
	}

	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
