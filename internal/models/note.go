package models

// Note is an analyst comment attached to a cell
type Note struct {
	ID     string `json:"id"`
	Msg    string `json:"msg"`
	Author string `json:"author,omitempty"`
	Date   int64  `json:"date,omitempty"` // Unix ms
}

// MapAuth is the credential pair needed to build tile URLs for one raster
type MapAuth struct {
	MapID string `json:"mapid"`
	Token string `json:"token"`
}
