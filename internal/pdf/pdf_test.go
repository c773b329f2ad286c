package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		name        string
		pageRange   string
		want        []int
		expectError bool
	}{
		{name: "empty range returns nil", pageRange: "", want: nil},
		{name: "blank range returns nil", pageRange: "  ", want: nil},
		{name: "single page", pageRange: "1", want: []int{1}},
		{name: "multiple single pages", pageRange: "1,3,5", want: []int{1, 3, 5}},
		{name: "simple range", pageRange: "1-5", want: []int{1, 2, 3, 4, 5}},
		{name: "mixed pages and ranges", pageRange: "1,3-5,7", want: []int{1, 3, 4, 5, 7}},
		{name: "range with spaces", pageRange: " 1 - 3 , 5 ", want: []int{1, 2, 3, 5}},
		{name: "invalid page number", pageRange: "abc", expectError: true},
		{name: "invalid range format", pageRange: "1-2-3", expectError: true},
		{name: "start greater than end", pageRange: "5-1", expectError: true},
		{name: "invalid start page", pageRange: "abc-5", expectError: true},
		{name: "invalid end page", pageRange: "1-xyz", expectError: true},
		{name: "zero page", pageRange: "0", expectError: true},
		{name: "zero start", pageRange: "0-2", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePageRange(tt.pageRange)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePageFromFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		want        int
		expectError bool
	}{
		{name: "valid page file", filename: "page_1_image_1.png", want: 1},
		{name: "valid page file with jpg", filename: "page_10_image_2.jpg", want: 10},
		{name: "not a page file", filename: "image_1.png", expectError: true},
		{name: "invalid format", filename: "page_", expectError: true},
		{name: "invalid page number", filename: "page_abc_image_1.png", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePageFromFilename(tt.filename)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImageIndex(t *testing.T) {
	assert.Equal(t, 2, imageIndex("page_1_image_2.png"))
	assert.Equal(t, 13, imageIndex("page_4_Im0_13.jpg"))
	assert.Equal(t, 0, imageIndex("page_4_image.png"))
	assert.Equal(t, 0, imageIndex("noindex"))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.True(t, IsPDF([]byte("\r\n%PDF-1.4")))
	assert.False(t, IsPDF([]byte("\x89PNG\r\n")))
	assert.False(t, IsPDF(nil))
}

func TestExtractImages_ErrorCases(t *testing.T) {
	ctx := context.Background()

	t.Run("not a pdf", func(t *testing.T) {
		_, err := ExtractImages(ctx, []byte("GIF89a"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a PDF")
	})

	t.Run("truncated pdf", func(t *testing.T) {
		_, err := ExtractImages(ctx, []byte("%PDF-1.4\n%%EOF"), "")
		require.Error(t, err)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := ExtractImagesFile(ctx, "/non/existent/file.pdf", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to extract images from PDF")
	})

	t.Run("invalid page range", func(t *testing.T) {
		_, err := ExtractImagesFile(ctx, "dummy.pdf", "invalid-range")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid page range")
	})
}

func writeImage(t *testing.T, dir, name, enc string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name)) //nolint:gosec // controlled test path
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := range 6 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{uint8(10 * x), uint8(10 * y), 0, 255})
		}
	}
	switch enc {
	case "png":
		require.NoError(t, png.Encode(f, img))
	case "jpeg":
		require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 80}))
	default:
		t.Fatalf("unknown encoder: %s", enc)
	}
}

func TestCollectExtractedImages_OrdersByPageAndIndex(t *testing.T) {
	dir := t.TempDir()

	writeImage(t, dir, "page_2_image_1.png", "png")
	writeImage(t, dir, "page_1_image_2.jpg", "jpeg")
	writeImage(t, dir, "page_1_image_1.png", "png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))
	writeImage(t, dir, "not_a_match.png", "png")

	pages, err := collectExtractedImages(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	var order []string
	for _, p := range pages {
		order = append(order, fmt.Sprintf("%d.%d", p.Number, p.Index))
		assert.Equal(t, 8, p.Image.Bounds().Dx())
		assert.Equal(t, 6, p.Image.Bounds().Dy())
	}
	assert.Equal(t, []string{"1.1", "1.2", "2.1"}, order)
}

func TestCollectExtractedImages_SkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image_1.png"), []byte("not an image"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_3_image_1.png"), []byte("corrupt"), 0o644))
	writeImage(t, dir, "page_4_image_1.jpg", "jpeg")

	pages, err := collectExtractedImages(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 4, pages[0].Number)
}

func TestCollectExtractedImages_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "page_1_image_1.png", "png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collectExtractedImages(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
}

func BenchmarkParsePageRange(b *testing.B) {
	for _, pageRange := range []string{"1", "1-10", "1,3,5,7,9", "1-5,10-15,20"} {
		b.Run("range_"+strings.ReplaceAll(pageRange, ",", "_"), func(b *testing.B) {
			for range b.N {
				_, _ = parsePageRange(pageRange)
			}
		})
	}
}
