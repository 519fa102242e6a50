package geodb

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
	"github.com/rs/zerolog"
)

type geoIPRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// NewMaxMindGeoDB opens a MaxMind country database file (GeoLite2-Country or
// compatible) and exposes it as a waf.GeoDB.
func NewMaxMindGeoDB(logger zerolog.Logger, dbPath string) (*MaxMindGeoDB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("no GeoIP database path specified")
	}

	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load GeoIP database: %v", err)
	}

	return &MaxMindGeoDB{reader: reader, logger: logger}, nil
}

// MaxMindGeoDB is a waf.GeoDB backed by an mmdb file.
type MaxMindGeoDB struct {
	reader *maxminddb.Reader
	logger zerolog.Logger
}

// GeoLookup implements waf.GeoDB. Addresses the database does not know return
// an empty country code with a nil error.
func (db *MaxMindGeoDB) GeoLookup(ipAddr string) (countryCode string, err error) {
	ip := net.ParseIP(ipAddr)
	if ip == nil {
		err = fmt.Errorf("invalid IP address: %s", ipAddr)
		return
	}

	var record geoIPRecord
	if err = db.reader.Lookup(ip, &record); err != nil {
		return
	}

	countryCode = record.Country.ISOCode
	return
}

// Close releases the underlying database file.
func (db *MaxMindGeoDB) Close() error {
	return db.reader.Close()
}
