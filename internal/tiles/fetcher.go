package tiles

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/image/draw"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/upstream"
)

// Coord addresses a 256px map tile
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Key is the cache key of the tile, "{x}_{y}_{zoom}"
func (c Coord) Key() string {
	return fmt.Sprintf("%d_%d_%d", c.X, c.Y, c.Z)
}

// Fetcher downloads classified-raster tiles and decodes them into RGBA
type Fetcher struct {
	client *http.Client
	base   string
	proxy  bool
}

// NewFetcher creates a fetcher. In proxy mode tiles are requested from the
// local /ee/tiles route of base instead of the map server layout.
func NewFetcher(client *http.Client, base string, proxy bool) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, base: strings.TrimRight(base, "/"), proxy: proxy}
}

// URL builds the tile URL for an authorized map
func (f *Fetcher) URL(auth models.MapAuth, c Coord) string {
	prefix := "/map/"
	if f.proxy {
		prefix = "/ee/tiles/"
	}
	return fmt.Sprintf("%s%s%s/%d/%d/%d?token=%s",
		f.base, prefix, url.PathEscape(auth.MapID), c.Z, c.X, c.Y, url.QueryEscape(auth.Token))
}

// Fetch downloads and decodes one tile. Errors are *upstream.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, tileURL string) (*image.NRGBA, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build tile request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, upstream.TransportError(tileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, upstream.StatusError(tileURL, resp.StatusCode, string(body))
	}

	src, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, upstream.DecodeError(tileURL, err)
	}
	return toNRGBA(src), nil
}

// toNRGBA copies src into a non-premultiplied canvas so that the encoded
// pixel values survive untouched
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
