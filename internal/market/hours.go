package market

import "time"

// nyLocation is the exchange calendar timezone every hours check runs
// against; it falls back to UTC if the platform's tzdata is unavailable,
// matching the router's own easternLocation fallback.
var nyLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// IsRegularSession reports whether now falls within 09:30-16:00 ET on a
// weekday.
func IsRegularSession(now time.Time) bool {
	et := now.In(nyLocation)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	hm := et.Hour()*100 + et.Minute()
	return hm >= 930 && hm < 1600
}

// IsExtendedSession reports whether now falls within pre-market
// (04:00-09:30 ET) or after-hours (16:00-20:00 ET) on a weekday.
func IsExtendedSession(now time.Time) bool {
	et := now.In(nyLocation)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	hm := et.Hour()*100 + et.Minute()
	return (hm >= 400 && hm < 930) || (hm >= 1600 && hm < 2000)
}

// IsOpenForPolling reports whether a stock-polling harvester source should
// poll at all at now — regular session or either extended session. Crypto
// sources never consult this; they poll continuously.
func IsOpenForPolling(now time.Time) bool {
	return IsRegularSession(now) || IsExtendedSession(now)
}
