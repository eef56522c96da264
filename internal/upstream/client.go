package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// UserAgent is sent with every request
const UserAgent = "forestwatch-backend-go/1.0"

// DefaultTimeout bounds a single upstream request
const DefaultTimeout = 30 * time.Second

// Client talks to the report server that owns cells, polygons and map
// credentials
type Client struct {
	base       string
	httpClient *http.Client
	header     http.Header
}

// NewClient creates a client for base, e.g. "https://host". A zero timeout
// uses DefaultTimeout.
func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		header: make(http.Header),
	}
}

// HTTPClient returns the underlying client so tile fetches share its transport
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// SetHeader adds a header to every request, e.g. a session cookie. Call it
// before the client is shared.
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

func (c *Client) cellURL(reportID string, op models.Operation, id string) string {
	return fmt.Sprintf("%s/api/v0/report/%s/operation/%s/cell/%s",
		c.base, url.PathEscape(reportID), url.PathEscape(op.String()), url.PathEscape(id))
}

// do sends a request with an optional JSON body and decodes a JSON response
// into out when out is non-nil
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return StatusError(rawURL, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return DecodeError(rawURL, err)
	}
	return nil
}

// Cell fetches one cell record
func (c *Client) Cell(ctx context.Context, reportID string, op models.Operation, id string) (*models.Cell, error) {
	var cell models.Cell
	if err := c.do(ctx, http.MethodGet, c.cellURL(reportID, op, id), nil, &cell); err != nil {
		return nil, err
	}
	return &cell, nil
}

// Children fetches the sub-cells of a cell. The server may omit sub-cells it
// has never stored.
func (c *Client) Children(ctx context.Context, reportID string, op models.Operation, id string) ([]models.Cell, error) {
	var cells []models.Cell
	if err := c.do(ctx, http.MethodGet, c.cellURL(reportID, op, id)+"/children", nil, &cells); err != nil {
		return nil, err
	}
	return cells, nil
}

// cellUpdate is the writable part of a cell record
type cellUpdate struct {
	Done                bool    `json:"done"`
	NDFILow             float64 `json:"ndfi_low"`
	NDFIHigh            float64 `json:"ndfi_high"`
	CompareView         string  `json:"compare_view"`
	MapOneLayerStatus   string  `json:"map_one_layer_status"`
	MapTwoLayerStatus   string  `json:"map_two_layer_status"`
	MapThreeLayerStatus string  `json:"map_three_layer_status"`
	MapFourLayerStatus  string  `json:"map_four_layer_status"`
}

// SaveCell writes the editable fields of a cell
func (c *Client) SaveCell(ctx context.Context, cell *models.Cell) error {
	body := cellUpdate{
		Done:                cell.Done,
		NDFILow:             cell.NDFILow,
		NDFIHigh:            cell.NDFIHigh,
		CompareView:         cell.CompareView,
		MapOneLayerStatus:   cell.MapOneLayerStatus,
		MapTwoLayerStatus:   cell.MapTwoLayerStatus,
		MapThreeLayerStatus: cell.MapThreeLayerStatus,
		MapFourLayerStatus:  cell.MapFourLayerStatus,
	}
	return c.do(ctx, http.MethodPut, c.cellURL(cell.ReportID, cell.Operation, cell.ID()), body, nil)
}

type polygonBody struct {
	Paths [][]models.LatLng  `json:"paths"`
	Type  models.PolygonType `json:"type"`
}

type polygonRecord struct {
	ID      string             `json:"id"`
	Paths   [][]models.LatLng  `json:"paths"`
	Type    models.PolygonType `json:"type"`
	AddedOn int64              `json:"added_on"`
	AddedBy string             `json:"added_by"`
}

func (c *Client) polygonURL(p *models.Polygon) string {
	return c.cellURL(p.ReportID, p.Operation, p.CellID) + "/polygon"
}

// CreatePolygon stores a new polygon and returns the server id
func (c *Client) CreatePolygon(ctx context.Context, p *models.Polygon) (string, error) {
	var rec polygonRecord
	if err := c.do(ctx, http.MethodPost, c.polygonURL(p), polygonBody{Paths: p.Paths, Type: p.Type}, &rec); err != nil {
		return "", err
	}
	if rec.ID == "" {
		return "", DecodeError(c.polygonURL(p), fmt.Errorf("response has no polygon id"))
	}
	return rec.ID, nil
}

// UpdatePolygon replaces the geometry and type of a stored polygon
func (c *Client) UpdatePolygon(ctx context.Context, p *models.Polygon) error {
	u := c.polygonURL(p) + "/" + url.PathEscape(p.ServerID)
	return c.do(ctx, http.MethodPut, u, polygonBody{Paths: p.Paths, Type: p.Type}, nil)
}

// DeletePolygon removes a stored polygon. A polygon the server no longer
// knows counts as deleted.
func (c *Client) DeletePolygon(ctx context.Context, p *models.Polygon) error {
	u := c.polygonURL(p) + "/" + url.PathEscape(p.ServerID)
	if err := c.do(ctx, http.MethodDelete, u, nil, nil); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// ListPolygons returns the stored polygons of a cell as synced records
func (c *Client) ListPolygons(ctx context.Context, reportID string, op models.Operation, cellID string) ([]*models.Polygon, error) {
	var recs []polygonRecord
	if err := c.do(ctx, http.MethodGet, c.cellURL(reportID, op, cellID)+"/polygon", nil, &recs); err != nil {
		return nil, err
	}
	out := make([]*models.Polygon, 0, len(recs))
	for _, r := range recs {
		p := &models.Polygon{
			ID:        r.ID,
			ServerID:  r.ID,
			Paths:     r.Paths,
			Type:      r.Type,
			ReportID:  reportID,
			Operation: op,
			CellID:    cellID,
			SyncState: models.SyncSynced,
			AddedBy:   r.AddedBy,
		}
		if r.AddedOn > 0 {
			p.AddedOn = time.UnixMilli(r.AddedOn).UTC()
		}
		out = append(out, p)
	}
	return out, nil
}

// MapAuth fetches the tile credentials of a sensor map for a report
func (c *Client) MapAuth(ctx context.Context, reportID, sensor string) (models.MapAuth, error) {
	var auth models.MapAuth
	u := fmt.Sprintf("%s/api/v0/report/%s/%s/map", c.base, url.PathEscape(reportID), url.PathEscape(sensor))
	if err := c.do(ctx, http.MethodGet, u, nil, &auth); err != nil {
		return models.MapAuth{}, err
	}
	if auth.MapID == "" {
		return models.MapAuth{}, DecodeError(u, fmt.Errorf("response has no mapid"))
	}
	return auth, nil
}

// RGBAuth fetches the credentials of an RGB band composite for a cell
func (c *Client) RGBAuth(ctx context.Context, reportID string, op models.Operation, cellID string, r, g, b int, sensor string) (models.MapAuth, error) {
	var auth models.MapAuth
	u := fmt.Sprintf("%s/rgb/%d/%d/%d/sensor/%s", c.cellURL(reportID, op, cellID), r, g, b, url.PathEscape(sensor))
	if err := c.do(ctx, http.MethodGet, u, nil, &auth); err != nil {
		return models.MapAuth{}, err
	}
	return auth, nil
}

// Landsat returns the scene information of a cell as sent by the server
func (c *Client) Landsat(ctx context.Context, reportID string, op models.Operation, cellID string) (json.RawMessage, error) {
	var info json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.cellURL(reportID, op, cellID)+"/landsat", nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// AddNote attaches a note to a cell
func (c *Client) AddNote(ctx context.Context, reportID, cellID, msg string) (*models.Note, error) {
	u := fmt.Sprintf("%s/api/v0/report/%s/cell/%s/note", c.base, url.PathEscape(reportID), url.PathEscape(cellID))
	var note models.Note
	if err := c.do(ctx, http.MethodPost, u, map[string]string{"msg": msg}, &note); err != nil {
		return nil, err
	}
	return &note, nil
}
