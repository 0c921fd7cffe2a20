package utils

import (
	"strings"
)

// AmenityFlags are the boolean attributes derived from free-form amenity
// strings at ingestion time. Searches filter on these flags, not on the
// raw amenity text.
type AmenityFlags struct {
	PetsAllowed     bool
	Parking         bool
	Laundry         bool
	AirConditioning bool
}

// amenity keyword aliases as they appear in scraped listing data
var amenityAliases = map[string][]string{
	"pets":    {"pet", "pets allowed", "dog", "cat", "pet friendly"},
	"parking": {"parking", "garage", "car park", "covered parking"},
	"laundry": {"washer", "dryer", "laundry", "washer/dryer", "w/d", "washing machine"},
	"ac":      {"air conditioning", "air conditioner", "aircon", "a/c", "central air"},
}

// DeriveAmenityFlags inspects a listing's amenity strings and description
// and derives the boolean filter flags.
func DeriveAmenityFlags(amenities []string, description string) AmenityFlags {
	haystack := strings.ToLower(description)
	for _, a := range amenities {
		haystack += " | " + strings.ToLower(a)
	}

	return AmenityFlags{
		PetsAllowed:     matchesAny(haystack, amenityAliases["pets"]),
		Parking:         matchesAny(haystack, amenityAliases["parking"]),
		Laundry:         matchesAny(haystack, amenityAliases["laundry"]),
		AirConditioning: matchesAny(haystack, amenityAliases["ac"]),
	}
}

func matchesAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
