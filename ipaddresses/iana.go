package ipaddresses

// Special-purpose IPv4 address spaces per the IANA registry. Geo data sets do
// not carry these, so lookup misses for them are expected and not logged.
var specialPurposeAddressSpaces = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
}

// IsSpecialPurposeAddress checks whether an IPv4 address belongs to one of the
// IANA special-purpose address spaces (private, loopback, link-local, etc).
func IsSpecialPurposeAddress(ipAddr string) (special bool, err error) {
	ip, err := ParseIPAddress(ipAddr)
	if err != nil {
		return
	}

	for _, cidr := range specialPurposeAddressSpaces {
		prefix, mask, cerr := ParseCIDR(cidr)
		if cerr != nil {
			err = cerr
			return
		}

		if ip&mask == prefix {
			special = true
			return
		}
	}

	return
}
