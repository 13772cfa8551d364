package domain

import "strings"

// singleZoneCountries maps countries that observe one civil time across
// their whole territory to that zone.
var singleZoneCountries = map[string]string{
	"at": "Europe/Vienna",
	"be": "Europe/Brussels",
	"ch": "Europe/Zurich",
	"cz": "Europe/Prague",
	"de": "Europe/Berlin",
	"dk": "Europe/Copenhagen",
	"eg": "Africa/Cairo",
	"fi": "Europe/Helsinki",
	"fr": "Europe/Paris",
	"gb": "Europe/London",
	"gr": "Europe/Athens",
	"hu": "Europe/Budapest",
	"ie": "Europe/Dublin",
	"il": "Asia/Jerusalem",
	"in": "Asia/Kolkata",
	"is": "Atlantic/Reykjavik",
	"it": "Europe/Rome",
	"jp": "Asia/Tokyo",
	"ke": "Africa/Nairobi",
	"kr": "Asia/Seoul",
	"ng": "Africa/Lagos",
	"nl": "Europe/Amsterdam",
	"no": "Europe/Oslo",
	"pl": "Europe/Warsaw",
	"se": "Europe/Stockholm",
	"sg": "Asia/Singapore",
	"th": "Asia/Bangkok",
	"za": "Africa/Johannesburg",
}

// CountryTimeZone returns the zone of a country that has exactly one.
// Countries spanning several zones report false.
func CountryTimeZone(countryCode string) (string, bool) {
	tz, ok := singleZoneCountries[strings.ToLower(countryCode)]
	return tz, ok
}
