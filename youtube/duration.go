package youtube

import (
	"math"
	"regexp"
	"strconv"
)

// isoDurationRegex matches the ISO 8601 subset the Data API emits for
// contentDetails.duration: P[nD]T[nH][nM][nS].
var isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 duration such as "PT1H2M3S" to whole
// seconds. Missing components count as zero. A leading day component
// ("P1DT2H") is also accepted, since uploads longer than a day carry one.
// Input that does not match, or overflows an int, yields 0.
func ParseDuration(s string) int {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	units := [...]int64{86400, 3600, 60, 1}
	var total int64
	for i, unit := range units {
		part := m[i+1]
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n > (math.MaxInt32-total)/unit {
			return 0
		}
		total += n * unit
	}
	return int(total)
}
