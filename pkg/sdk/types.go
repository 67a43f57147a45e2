package sdk

import "time"

// Metadata carries the editable photographic attributes of an image.
// Nil fields are absent (on reads) or left unchanged (on updates).
type Metadata struct {
	Camera           *string  `json:"camera,omitempty"`
	Lens             *string  `json:"lens,omitempty"`
	Aperture         *float64 `json:"aperture,omitempty"`
	ShutterSpeed     *string  `json:"shutter_speed,omitempty"`
	FocalLength      *float64 `json:"focal_length,omitempty"`
	FocalLength35mm  *float64 `json:"focal_length_35mm,omitempty"`
	ISO              *int     `json:"iso,omitempty"`
	TakenAt          *string  `json:"taken_at,omitempty"` // YYYY-MM-DD
	OriginalFilename *string  `json:"original_filename,omitempty"`
}

// Version is one rendered resolution of an image.
type Version struct {
	Type      string `json:"type"` // original, regular, thumbnail, tiny
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	URL       string `json:"url"`
}

// Image is one photograph with its versions.
type Image struct {
	ID        string    `json:"id"`
	Metadata  Metadata  `json:"metadata"`
	Caption   *string   `json:"caption,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Versions  []Version `json:"versions"`
}

// Review is the outcome of staging an upload for confirmation.
type Review struct {
	SessionID string   `json:"session_id"`
	FilePath  string   `json:"file_path"`
	Metadata  Metadata `json:"metadata"`
}

// ReplacementRule rewrites a substring of an extracted camera or lens name.
type ReplacementRule struct {
	From string `json:"From"`
	To   string `json:"To"`
}

// SearchResult is one hybrid search hit with its score breakdown.
type SearchResult struct {
	Image      Image   `json:"image"`
	FinalScore float64 `json:"final_score"`
	Source     string  `json:"source"` // embedding, text, hybrid
	Breakdown  struct {
		Embedding float64 `json:"embedding"`
		Text      float64 `json:"text"`
		RankBonus float64 `json:"rank_bonus"`
	} `json:"breakdown"`
}

// Report summarizes a backfill or cleanup run.
type Report struct {
	Scanned    int `json:"scanned"`
	Successful int `json:"successful,omitempty"`
	Deleted    int `json:"deleted,omitempty"`
	Errors     int `json:"errors"`
}

// Health is the aggregated service health.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
