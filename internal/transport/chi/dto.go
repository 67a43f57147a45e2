package chi

import (
	"time"

	"github.com/silvergrain/gallery/internal/domain"
	searchuc "github.com/silvergrain/gallery/internal/usecase/search"
)

// URLResolver turns a stored version into a publicly servable URL.
type URLResolver interface {
	PublicURLForVersion(v domain.ImageVersion) string
}

type metadataPayload struct {
	Camera           *string  `json:"camera,omitempty"`
	Lens             *string  `json:"lens,omitempty"`
	Aperture         *float64 `json:"aperture,omitempty"`
	ShutterSpeed     *string  `json:"shutter_speed,omitempty"`
	FocalLength      *float64 `json:"focal_length,omitempty"`
	FocalLength35mm  *float64 `json:"focal_length_35mm,omitempty"`
	ISO              *int     `json:"iso,omitempty"`
	TakenAt          *string  `json:"taken_at,omitempty"`
	OriginalFilename *string  `json:"original_filename,omitempty"`
}

type versionPayload struct {
	Type      string `json:"type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	URL       string `json:"url"`
}

type imagePayload struct {
	ID        string           `json:"id"`
	Metadata  metadataPayload  `json:"metadata"`
	Caption   *string          `json:"caption,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Versions  []versionPayload `json:"versions"`
}

type reviewResponse struct {
	SessionID string          `json:"session_id"`
	FilePath  string          `json:"file_path"`
	Metadata  metadataPayload `json:"metadata"`
}

type confirmRequest struct {
	SessionID string          `json:"session_id"`
	Metadata  metadataPayload `json:"metadata"`
}

type searchResultPayload struct {
	Image      imagePayload `json:"image"`
	FinalScore float64      `json:"final_score"`
	Source     string       `json:"source"`
	Breakdown  struct {
		Embedding float64 `json:"embedding"`
		Text      float64 `json:"text"`
		RankBonus float64 `json:"rank_bonus"`
	} `json:"breakdown"`
}

type reportPayload struct {
	Scanned    int `json:"scanned"`
	Successful int `json:"successful,omitempty"`
	Deleted    int `json:"deleted,omitempty"`
	Errors     int `json:"errors"`
}

const dateLayout = "2006-01-02"

func metadataToPayload(m domain.Metadata) metadataPayload {
	p := metadataPayload{
		Camera:           m.Camera,
		Lens:             m.Lens,
		Aperture:         m.Aperture,
		ShutterSpeed:     m.ShutterSpeed,
		FocalLength:      m.FocalLength,
		FocalLength35mm:  m.FocalLength35mm,
		ISO:              m.ISO,
		OriginalFilename: m.OriginalFilename,
	}
	if m.TakenAt != nil {
		s := m.TakenAt.Format(dateLayout)
		p.TakenAt = &s
	}
	return p
}

// metadataFromPayload parses the wire form back into domain metadata.
// An unparsable date is a validation error for the caller to map.
func metadataFromPayload(p metadataPayload) (domain.Metadata, error) {
	m := domain.Metadata{
		Camera:           p.Camera,
		Lens:             p.Lens,
		Aperture:         p.Aperture,
		ShutterSpeed:     p.ShutterSpeed,
		FocalLength:      p.FocalLength,
		FocalLength35mm:  p.FocalLength35mm,
		ISO:              p.ISO,
		OriginalFilename: p.OriginalFilename,
	}
	if p.TakenAt != nil && *p.TakenAt != "" {
		t, err := time.Parse(dateLayout, *p.TakenAt)
		if err != nil {
			return domain.Metadata{}, err
		}
		m.TakenAt = &t
	}
	return m, nil
}

func patchFromPayload(p metadataPayload) (domain.MetadataPatch, error) {
	patch := domain.MetadataPatch{
		Camera:           p.Camera,
		Lens:             p.Lens,
		Aperture:         p.Aperture,
		ShutterSpeed:     p.ShutterSpeed,
		FocalLength:      p.FocalLength,
		FocalLength35mm:  p.FocalLength35mm,
		ISO:              p.ISO,
		OriginalFilename: p.OriginalFilename,
	}
	if p.TakenAt != nil && *p.TakenAt != "" {
		t, err := time.Parse(dateLayout, *p.TakenAt)
		if err != nil {
			return domain.MetadataPatch{}, err
		}
		patch.TakenAt = &t
	}
	return patch, nil
}

func imageToPayload(img domain.Image, urls URLResolver) imagePayload {
	p := imagePayload{
		ID:        img.ID.String(),
		Metadata:  metadataToPayload(img.Metadata),
		Caption:   img.Caption,
		CreatedAt: img.CreatedAt,
		UpdatedAt: img.UpdatedAt,
		Versions:  make([]versionPayload, 0, len(img.Versions)),
	}
	for _, v := range img.Versions {
		p.Versions = append(p.Versions, versionPayload{
			Type:      string(v.Type),
			Width:     v.Width,
			Height:    v.Height,
			SizeBytes: v.SizeBytes,
			MimeType:  v.MimeType,
			URL:       urls.PublicURLForVersion(v),
		})
	}
	return p
}

func searchResultToPayload(r searchuc.Result, urls URLResolver) searchResultPayload {
	p := searchResultPayload{
		Image:      imageToPayload(r.Image, urls),
		FinalScore: r.FinalScore,
		Source:     string(r.Source),
	}
	p.Breakdown.Embedding = r.Breakdown.Embedding
	p.Breakdown.Text = r.Breakdown.Text
	p.Breakdown.RankBonus = r.Breakdown.RankBonus
	return p
}
