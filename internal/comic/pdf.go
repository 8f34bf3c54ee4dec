package comic

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/go-pdf/fpdf"
)

// Document page size in points (6.875 x 10.438 in).
const (
	DocWidth  = 495.0
	DocHeight = 752.0
)

const pageImage = "comic-page"

// Document embeds page in a single DocWidth x DocHeight PDF page, scaled to
// fit and centred.
func Document(page image.Image) ([]byte, error) {
	var img bytes.Buffer
	if err := png.Encode(&img, page); err != nil {
		return nil, fmt.Errorf("encode comic page: %w", err)
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: DocWidth, Ht: DocHeight},
	})
	pdf.SetTitle("Your Adventure Comic", true)
	pdf.SetCreator("StoryEngine", true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(pageImage, opts, &img)

	b := page.Bounds()
	w, h := fit(float64(b.Dx()), float64(b.Dy()), DocWidth, DocHeight)
	pdf.ImageOptions(pageImage, (DocWidth-w)/2, (DocHeight-h)/2, w, h, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("write comic pdf: %w", err)
	}
	return out.Bytes(), nil
}

// fit scales w x h to the largest size inside maxW x maxH.
func fit(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := math.Min(maxW/w, maxH/h)
	return w * scale, h * scale
}
