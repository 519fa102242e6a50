package ipaddresses

import (
	"fmt"
	"strconv"
	"strings"
)

const errInvalidIPAddrFmt = "invalid IP address: %s"
const errInvalidCIDRFmt = "invalid CIDR notation: %s"

// ParseIPAddress converts an IPv4 address from octet notation (*.*.*.*) to
// its 32-bit unsigned integer value.
func ParseIPAddress(ipAddr string) (ip uint32, err error) {
	octets := strings.Split(ipAddr, ".")
	if len(octets) != 4 {
		err = fmt.Errorf(errInvalidIPAddrFmt, ipAddr)
		return
	}

	for _, octet := range octets {
		var b int

		b, err = strconv.Atoi(octet)
		if err != nil || b < 0 || b > 255 {
			err = fmt.Errorf(errInvalidIPAddrFmt, ipAddr)
			return
		}

		ip <<= 8
		ip |= uint32(b)
	}

	return ip, nil
}

// ParseCIDR converts a CIDR notation into a 32-bit unsigned integer prefix of
// an IPv4 address space and its corresponding mask.
func ParseCIDR(cidr string) (prefix uint32, mask uint32, err error) {
	splitted := strings.Split(cidr, "/")
	if len(splitted) != 2 {
		err = fmt.Errorf(errInvalidCIDRFmt, cidr)
		return
	}

	ipAddr, suffix := splitted[0], splitted[1]
	ip, err := ParseIPAddress(ipAddr)
	if err != nil {
		err = fmt.Errorf(errInvalidCIDRFmt, cidr)
		return
	}

	bits, err := strconv.Atoi(suffix)
	if err != nil || bits < 0 || bits > 32 {
		err = fmt.Errorf(errInvalidCIDRFmt, cidr)
		return
	}

	mask = uint32(0xffffffff) << uint32(32-bits)
	prefix = ip & mask
	return
}

// RangeFromCIDR returns the first and last address of the address space
// defined by a CIDR notation. Used to build geo range records.
func RangeFromCIDR(cidr string) (startIP uint32, endIP uint32, err error) {
	prefix, mask, err := ParseCIDR(cidr)
	if err != nil {
		return
	}

	startIP = prefix
	endIP = prefix | ^mask
	return
}
