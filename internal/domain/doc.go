// Package domain models the conditions an installation can react to.
//
// # Conditions
//
// A condition is a lowercase name that is either true or false right now.
// Names come from two sources:
//
//	Flags:     operator-set booleans, e.g. "gallery_open", "maintenance".
//	Derived:   computed from the local clock and the sun's position.
//
// Flags always win: a flag named "true" set to false makes "true" false.
//
// Derived names:
//
//	true, false             literals
//	daytime, nighttime      sun above or below the horizon (exactly one holds)
//	january … december      current month
//	march15                 current month and day of month
//	monday … sunday         current weekday
//	spring, summer,
//	fall, winter            astronomical season from the sun's longitude
//	summer_solstice,
//	winter_solstice,
//	vernal_equinox,
//	autumnal_equinox        within ~0.041° of solar longitude 90/270/0/180
//	hour13                  current local hour is 13
//	hour22_4                current hour in [22, 4], wrapping past midnight
//
// Anything else is false; unknown names are not errors.
//
// # Ephemeris
//
// [ComputeEphemeris] implements the NOAA spreadsheet approximation of the
// solar position (https://gml.noaa.gov/grad/solcalc/calcdetails.html). All
// angles are in degrees. Sunrise and sunset use a zenith of 90.833° to
// account for refraction and the solar disk. At polar latitudes the sunrise
// hour angle is undefined and the sunrise/sunset fractions are NaN.
//
// Seasons are astronomical, not meteorological: spring starts when the
// apparent solar longitude crosses 0°, summer at 90°, fall at 180°, winter
// at 270°. Southern-hemisphere installations see the northern names.
//
// # Snapshots
//
// [BuildSnapshot] computes every derived field at once and returns an
// immutable [Snapshot]; callers publish it whole so readers never observe a
// half-updated set of fields.
package domain
