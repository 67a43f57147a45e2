package ingest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/silvergrain/gallery/internal/domain"
)

// extractMetadata reads photographic attributes embedded in the file at path.
// Missing or undecodable metadata is not an error, the corresponding fields
// simply stay nil.
func extractMetadata(path string, rules []domain.ReplacementRule) domain.Metadata {
	var meta domain.Metadata

	f, err := os.Open(path)
	if err != nil {
		return meta
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return meta
	}

	if camera := cameraName(x, rules); camera != "" {
		meta.Camera = &camera
	}
	if lens := stringTag(x, exif.LensModel); lens != "" {
		lens = applyRules(lens, rules)
		meta.Lens = &lens
	}
	if aperture, ok := ratioTag(x, exif.FNumber); ok {
		meta.Aperture = &aperture
	}
	if shutter := shutterSpeed(x); shutter != "" {
		meta.ShutterSpeed = &shutter
	}
	if iso, ok := intTag(x, exif.ISOSpeedRatings); ok {
		meta.ISO = &iso
	}
	if focal, ok := ratioTag(x, exif.FocalLength); ok {
		meta.FocalLength = &focal
	}
	if focal35, ok := intTag(x, exif.FocalLengthIn35mmFilm); ok {
		f35 := float64(focal35)
		meta.FocalLength35mm = &f35
	}
	if taken, err := x.DateTime(); err == nil {
		day := time.Date(taken.Year(), taken.Month(), taken.Day(), 0, 0, 0, 0, time.UTC)
		meta.TakenAt = &day
	}
	return meta
}

// cameraName joins the make and model tags, dropping a model that already
// repeats the make.
func cameraName(x *exif.Exif, rules []domain.ReplacementRule) string {
	maker := stringTag(x, exif.Make)
	model := stringTag(x, exif.Model)

	var name string
	switch {
	case maker != "" && model != "" && strings.HasPrefix(model, maker):
		name = model
	case maker != "" && model != "":
		name = maker + " " + model
	case model != "":
		name = model
	default:
		name = maker
	}
	return applyRules(name, rules)
}

// shutterSpeed renders the exposure time as a photographer-style fraction.
func shutterSpeed(x *exif.Exif) string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil {
		return ""
	}
	num, den, err := tag.Rat2(0)
	if err != nil || num == 0 || den == 0 {
		return ""
	}
	if den == 1 {
		return fmt.Sprintf("%ds", num)
	}
	if num == 1 {
		return fmt.Sprintf("1/%d", den)
	}
	return fmt.Sprintf("%d/%d", num, den)
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	v, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func ratioTag(x *exif.Exif, name exif.FieldName) (float64, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

func intTag(x *exif.Exif, name exif.FieldName) (int, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return v, true
}

// applyRules rewrites substrings of extracted camera and lens names. Used to
// normalize vendor spellings before the caller sees them.
func applyRules(s string, rules []domain.ReplacementRule) string {
	for _, r := range rules {
		if r.From == "" {
			continue
		}
		s = strings.ReplaceAll(s, r.From, r.To)
	}
	return strings.TrimSpace(s)
}
