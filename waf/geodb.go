package waf

// GeoDB maps IP addresses to their corresponding 2-letter country codes.
// An empty country code with a nil error means the address is unknown to the
// data set.
type GeoDB interface {
	GeoLookup(ipAddr string) (countryCode string, err error)
}
