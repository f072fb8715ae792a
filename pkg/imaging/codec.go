package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	// Registered decoders for the formats photos may arrive in.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is used for every encoded result.
const JPEGQuality = 90

// Decode parses an image in any registered format.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	return img, format, nil
}

// WriteTempJPEG encodes img into a new file in dir and returns its path.
// The caller owns the file and must remove it. On error nothing is left behind.
func WriteTempJPEG(dir string, img image.Image) (path string, err error) {
	file, err := os.CreateTemp(dir, "graffiti-*.jpg")
	if err != nil {
		return "", fmt.Errorf("imaging: create temp file: %w", err)
	}
	path = file.Name()
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("imaging: close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return path, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return path, nil
}
