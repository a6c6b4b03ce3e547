package domain

import (
	"fmt"
	"math"
	"strings"
)

// MaternalStatus is the normalized antenatal/postnatal classification of a
// recipient. Upstream data uses the clinic codes "ANC" and "PNC".
type MaternalStatus string

const (
	StatusAntenatal MaternalStatus = "antenatal"
	StatusPostnatal MaternalStatus = "postnatal"
	StatusUnknown   MaternalStatus = "unknown"
)

// ParseMaternalStatus normalizes a raw status value. It accepts the clinic
// codes ANC/PNC as well as the already-normalized forms, case-insensitively.
// Anything else maps to StatusUnknown.
func ParseMaternalStatus(raw string) MaternalStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "anc", "antenatal":
		return StatusAntenatal
	case "pnc", "postnatal":
		return StatusPostnatal
	default:
		return StatusUnknown
	}
}

// RecipientProfile is one row of the recipient store.
type RecipientProfile struct {
	ContactID         string
	Latitude          float64
	Longitude         float64
	Language          string
	MaternalStatus    MaternalStatus
	MedicalConditions string
	Status            string
	FacilityCode      string
	FacilityName      string
	PhoneNumber       string
	LastAlertDate     string // YYYY-MM-DD, empty when never alerted
}

// HasLocation reports whether the profile carries usable coordinates.
// (0, 0) is the sentinel for "no location on file".
func (p RecipientProfile) HasLocation() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// NormalizeLanguage lowercases and trims a free-form language code,
// defaulting to English when empty. Variants like "sw-KE" keep their
// subtag, just lowercased.
func NormalizeLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "" {
		return "en"
	}
	return strings.ReplaceAll(lang, "_", "-")
}

// IsSwahili reports whether a normalized language code routes advisory
// generation to Swahili. Accepts "sw", "swh", "sw-ke", "swahili", etc.
func IsSwahili(lang string) bool {
	lang = NormalizeLanguage(lang)
	return strings.HasPrefix(lang, "sw") || lang == "swahili"
}

// LocationKey collapses coordinates to a three-decimal-place grid cell
// (about 111 m). Recipients sharing a key share one forecast lookup per run.
func LocationKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f,%.3f", roundTo(lat, 3), roundTo(lon, 3))
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
