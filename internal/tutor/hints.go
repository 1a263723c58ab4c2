package tutor

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestHints carries the learner's approximate location, used to ground
// examples in familiar places and units.
type RequestHints struct {
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Empty reports whether no hint is known.
func (h RequestHints) Empty() bool {
	return h == RequestHints{}
}

// HintsFromRequest reads geolocation headers set by an edge proxy. X-Geo-*
// headers win over the X-Vercel-IP-* equivalents.
func HintsFromRequest(r *http.Request) RequestHints {
	return RequestHints{
		Latitude:  geoHeader(r, "Latitude"),
		Longitude: geoHeader(r, "Longitude"),
		City:      geoHeader(r, "City"),
		Country:   geoHeader(r, "Country"),
	}
}

func geoHeader(r *http.Request, field string) string {
	for _, name := range []string{"X-Geo-" + field, "X-Vercel-IP-" + field} {
		v := strings.TrimSpace(r.Header.Get(name))
		if v == "" {
			continue
		}
		// Proxies URL-encode city names.
		if decoded, err := url.QueryUnescape(v); err == nil {
			v = decoded
		}
		return v
	}
	return ""
}
