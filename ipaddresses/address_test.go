package ipaddresses

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIPAddressGood(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	ipAddr := "192.168.0.1"
	ipRef := uint32(3232235521)

	// Act
	ipConverted, err := ParseIPAddress(ipAddr)

	// Assert
	assert.Nil(err)
	assert.Equal(ipRef, ipConverted)
}

func TestParseIPAddressBad(t *testing.T) {
	assert := assert.New(t)

	bad := []string{
		"10.0.0.0/8",
		"256.256.256.256",
		"0.0.0.0.0",
		"O.O.O.O",
		"192.168.1",
	}

	for _, ipAddr := range bad {
		_, err := ParseIPAddress(ipAddr)
		assert.Error(err, "expected error for %s", ipAddr)
	}
}

func TestParseCIDR(t *testing.T) {
	assert := assert.New(t)

	// Act
	prefix, mask, err := ParseCIDR("10.20.0.0/16")

	// Assert
	assert.Nil(err)
	assert.Equal(uint32(0x0a140000), prefix)
	assert.Equal(uint32(0xffff0000), mask)
}

func TestParseCIDRBad(t *testing.T) {
	assert := assert.New(t)

	bad := []string{"10.20.0.0", "10.20.0.0/33", "10.20.0.0/x", "banana/8"}
	for _, cidr := range bad {
		_, _, err := ParseCIDR(cidr)
		assert.Error(err, "expected error for %s", cidr)
	}
}

func TestRangeFromCIDR(t *testing.T) {
	assert := assert.New(t)

	// Act
	startIP, endIP, err := RangeFromCIDR("1.2.3.0/24")

	// Assert
	assert.Nil(err)
	assert.Equal(uint32(0x01020300), startIP)
	assert.Equal(uint32(0x010203ff), endIP)
}

func TestIsSpecialPurposeAddress(t *testing.T) {
	assert := assert.New(t)

	special, err := IsSpecialPurposeAddress("132.239.180.101")
	assert.False(special)
	assert.Nil(err)

	special, err = IsSpecialPurposeAddress("192.168.0.1")
	assert.True(special)
	assert.Nil(err)

	_, err = IsSpecialPurposeAddress("not-an-ip")
	assert.Error(err)
}
