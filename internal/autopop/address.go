package autopop

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/care-records/internal/entity"
)

var (
	stateZipRe = regexp.MustCompile(`(?i)\b([a-z]{2})\s+(\d{5}(?:-\d{4})?)\b`)
	zipOnlyRe  = regexp.MustCompile(`\b(\d{5}(?:-\d{4})?)\b`)
	stateRe    = regexp.MustCompile(`(?i)^[a-z]{2}$`)
)

// ParseAddress splits a one-line address on commas. The first segment is line1; with
// two segments the second is the city, and with three or more the last two are city
// and "ST 12345". Segments between line1 and the city are dropped.
func ParseAddress(raw string) entity.Address {
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch len(parts) {
	case 0:
		return entity.Address{}
	case 1:
		return entity.Address{Line1: parts[0]}
	case 2:
		return entity.Address{Line1: parts[0], City: parts[1]}
	}

	n := len(parts)
	addr := entity.Address{
		Line1: parts[0],
		City:  parts[n-2],
	}
	last := parts[n-1]
	switch {
	case stateZipRe.MatchString(last):
		m := stateZipRe.FindStringSubmatch(last)
		addr.State, addr.Zip = strings.ToUpper(m[1]), m[2]
	case zipOnlyRe.MatchString(last):
		addr.Zip = zipOnlyRe.FindStringSubmatch(last)[1]
	case stateRe.MatchString(last):
		addr.State = strings.ToUpper(last)
	}
	return addr
}
