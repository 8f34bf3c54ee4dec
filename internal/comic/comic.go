// Package comic lays out visited scene images as a single comic page.
package comic

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/AaronLay10/StoryEngine/internal/media"
)

const (
	PageWidth  = 2048
	PageHeight = 2860

	DefaultPanels = 5

	maxCaption  = 50
	captionCut  = 47
	captionZoom = 4
)

// PanelOrder maps page slots to journey positions on a full page.
var PanelOrder = []int{0, 1, 3, 2, 4}

// panelOrder restricts PanelOrder to the first n journey positions, keeping
// their relative order, so a short page still draws every image it holds.
func panelOrder(n int) []int {
	order := make([]int, 0, n)
	for _, j := range PanelOrder {
		if j < n {
			order = append(order, j)
		}
	}
	return order
}

// ErrNoImages is returned when the journey holds no images.
var ErrNoImages = errors.New("no images available from journey")

var (
	paper  = color.RGBA{R: 0xfa, G: 0xf6, B: 0xec, A: 0xff}
	ink    = color.RGBA{R: 0x1b, G: 0x1b, B: 0x1b, A: 0xff}
	blank  = color.RGBA{R: 0xd8, G: 0xd2, B: 0xc4, A: 0xff}
	banner = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xe6}
)

// ImageSource resolves image URLs; *media.Cache satisfies it.
type ImageSource interface {
	FetchImage(ctx context.Context, url string) (*media.Image, bool)
}

// CaptionLookup returns the authored comic caption for the scene whose text
// is text, or "" when there is none.
type CaptionLookup func(text string) string

// Generator renders comic pages.
type Generator struct {
	Images ImageSource
	Panels int
}

func NewGenerator(images ImageSource, panels int) *Generator {
	if panels <= 0 || panels > len(PanelOrder) {
		panels = DefaultPanels
	}
	return &Generator{Images: images, Panels: panels}
}

// Generate composes the page and returns it as a single-page PDF document.
func (g *Generator) Generate(ctx context.Context, images, texts []string, lookup CaptionLookup) ([]byte, error) {
	page, err := g.Compose(ctx, images, texts, lookup)
	if err != nil {
		return nil, err
	}
	return Document(page)
}

// Compose draws up to Panels images with their captions onto one page.
// Images that fail to load leave their slot blank.
func (g *Generator) Compose(ctx context.Context, images, texts []string, lookup CaptionLookup) (*image.RGBA, error) {
	if len(images) > g.Panels {
		images = images[:g.Panels]
	}
	if len(texts) > g.Panels {
		texts = texts[:g.Panels]
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	page := image.NewRGBA(image.Rect(0, 0, PageWidth, PageHeight))
	draw.Draw(page, page.Bounds(), image.NewUniform(paper), image.Point{}, draw.Src)

	slots := Layout(g.Panels)
	for slot, journey := range panelOrder(len(slots)) {
		r := slots[slot]
		var pic image.Image
		if journey < len(images) {
			pic = g.load(ctx, images[journey])
		}
		drawPanel(page, r, pic)

		if journey < len(texts) && texts[journey] != "" {
			comicText := ""
			if lookup != nil {
				comicText = lookup(texts[journey])
			}
			drawCaption(page, r, Caption(texts[journey], comicText))
		}
	}

	return page, nil
}

func (g *Generator) load(ctx context.Context, url string) image.Image {
	if g.Images == nil || url == "" {
		return nil
	}
	img, ok := g.Images.FetchImage(ctx, url)
	if !ok {
		return nil
	}
	pic, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil
	}
	return pic
}

// Caption prefers comicText, else the first sentence of text, cut to fit.
func Caption(text, comicText string) string {
	c := comicText
	if c == "" {
		c, _, _ = strings.Cut(text, ".")
	}
	c = strings.TrimSpace(c)
	if utf8.RuneCountInString(c) > maxCaption {
		c = string([]rune(c)[:captionCut]) + "..."
	}
	return c
}

// Layout returns the panel rectangles for n panels in slot order: two across
// the top, one wide middle panel, two across the bottom.
func Layout(n int) []image.Rectangle {
	const (
		margin = 64
		gutter = 40
	)
	inner := PageWidth - 2*margin
	half := (inner - gutter) / 2
	rowH := (PageHeight - 2*margin - 2*gutter) / 3

	y0 := margin
	y1 := y0 + rowH + gutter
	y2 := y1 + rowH + gutter
	all := []image.Rectangle{
		image.Rect(margin, y0, margin+half, y0+rowH),
		image.Rect(margin+half+gutter, y0, margin+inner, y0+rowH),
		image.Rect(margin, y1, margin+inner, y1+rowH),
		image.Rect(margin, y2, margin+half, y2+rowH),
		image.Rect(margin+half+gutter, y2, margin+inner, y2+rowH),
	}
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

func drawPanel(dst *image.RGBA, r image.Rectangle, pic image.Image) {
	if pic == nil {
		draw.Draw(dst, r, image.NewUniform(blank), image.Point{}, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, r, pic, cover(pic.Bounds(), r), draw.Src, nil)
	}
	border(dst, r, 6)
}

// cover returns the centered part of src with the aspect ratio of dst.
func cover(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return src
	}
	if sw*dh > sh*dw {
		w := sh * dw / dh
		x := src.Min.X + (sw-w)/2
		return image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	}
	h := sw * dh / dw
	y := src.Min.Y + (sh-h)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+h)
}

func border(dst *image.RGBA, r image.Rectangle, w int) {
	c := image.NewUniform(ink)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), c, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), c, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), c, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), c, image.Point{}, draw.Src)
}

// drawCaption renders text with the bitmap face at 1x and scales it up into
// a banner along the bottom of the panel.
func drawCaption(dst *image.RGBA, r image.Rectangle, text string) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Ceil() + 8
	h := face.Height + 6

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.NewUniform(banner), image.Point{}, draw.Src)
	d.Dst = small
	d.Src = image.NewUniform(ink)
	d.Dot = fixed.P(4, 3+face.Ascent)
	d.DrawString(text)

	zoom := captionZoom
	for zoom > 1 && w*zoom > r.Dx()-24 {
		zoom--
	}
	bw, bh := w*zoom, h*zoom
	x := r.Min.X + 12
	y := r.Max.Y - 12 - bh
	draw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+bw, y+bh), small, small.Bounds(), draw.Over, nil)
}
