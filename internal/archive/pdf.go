package archive

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// PageImage is one decoded page image ready for composition. Data holds the
// original encoded bytes; Type is the fpdf image type ("JPG", "PNG", "GIF").
type PageImage struct {
	Data   []byte
	Type   string
	Width  int
	Height int
}

// ImageType maps a Go image format name to the type tag fpdf expects, or
// returns an error for formats the composer cannot embed.
func ImageType(format string) (string, error) {
	switch format {
	case "jpeg":
		return "JPG", nil
	case "png":
		return "PNG", nil
	case "gif":
		return "GIF", nil
	default:
		return "", fmt.Errorf("unsupported image format %q", format)
	}
}

// ComposePDF builds a single multi-page PDF from the images, one page per
// image, each page sized to its image. The slice order is the page order.
func ComposePDF(pages []PageImage) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to compose")
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		SizeStr:        "A4",
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, page := range pages {
		name := fmt.Sprintf("page-%04d", i)
		opts := fpdf.ImageOptions{ImageType: page.Type}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.Data))

		w, h := float64(page.Width), float64(page.Height)
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	}

	if pdf.Err() {
		return nil, fmt.Errorf("compose pdf: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
