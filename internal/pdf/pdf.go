// Package pdf extracts embedded raster images from uploaded PDF documents so
// they can be fed through the barcode scan like any other photo.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/idscan/internal/imageio"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var pdfMagic = []byte("%PDF-")

// ErrNoImages is returned when a document contains no extractable images.
var ErrNoImages = errors.New("pdf contains no extractable images")

// Page is one image extracted from a PDF page.
type Page struct {
	Number int         // 1-based page number
	Index  int         // 1-based image index on the page
	Image  image.Image `json:"-"`
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic)
}

// ExtractImages writes data to a temporary file and extracts its images.
// Pages are ordered by page number, then by image index.
func ExtractImages(ctx context.Context, data []byte, pageRange string) ([]Page, error) {
	if !IsPDF(data) {
		return nil, errors.New("input is not a PDF document")
	}

	f, err := os.CreateTemp("", "idscan-upload-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return ExtractImagesFile(ctx, f.Name(), pageRange)
}

// ExtractImagesFile extracts all images from the PDF at filename.
func ExtractImagesFile(ctx context.Context, filename string, pageRange string) ([]Page, error) {
	pageNumbers, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "idscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pageNumbers {
		selected = append(selected, strconv.Itoa(n))
	}

	if err := api.ExtractImagesFile(filename, tempDir, selected, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := collectExtractedImages(ctx, tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	if len(pages) == 0 {
		return nil, ErrNoImages
	}
	return pages, nil
}

// collectExtractedImages loads pdfcpu output named page_<n>_..._<idx>.<ext>.
// Files that do not follow that pattern or fail to decode are skipped.
func collectExtractedImages(ctx context.Context, dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var pages []Page
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		num, err := parsePageFromFilename(e.Name())
		if err != nil {
			continue
		}
		img, _, err := imageio.LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		pages = append(pages, Page{Number: num, Index: imageIndex(e.Name()), Image: img})
	}

	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Number != pages[j].Number {
			return pages[i].Number < pages[j].Number
		}
		return pages[i].Index < pages[j].Index
	})
	return pages, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu image name.
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page file")
	}

	parts := strings.Split(filename, "_")
	if len(parts) < 2 || parts[1] == "" {
		return 0, errors.New("invalid filename format")
	}

	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.New("invalid page number")
	}
	return n, nil
}

// imageIndex returns the trailing numeric component of name, or 0.
func imageIndex(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(base, "_")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return 0
	}
	return n
}

// parsePageRange parses a page range string like "1-5" or "1,3,5".
// An empty string selects all pages.
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for part := range strings.SplitSeq(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

func parseRangeToken(part string) ([]int, error) {
	if strings.Contains(part, "-") {
		bounds := strings.Split(part, "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", bounds[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", bounds[1])
		}
		if start < 1 {
			return nil, fmt.Errorf("page numbers start at 1, got %d", start)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	if page < 1 {
		return nil, fmt.Errorf("page numbers start at 1, got %d", page)
	}
	return []int{page}, nil
}
