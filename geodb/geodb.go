package geodb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/ipaddresses"
)

// GeoIPDataRecord is one row of a curated GeoIP data set: a contiguous IPv4
// range mapped to a country code.
type GeoIPDataRecord struct {
	StartIP     uint32 `json:"startIP"`
	EndIP       uint32 `json:"endIP"`
	CountryCode string `json:"countryCode"`
}

// NewGeoDB instantiates an in-memory GeoIP database over range records.
func NewGeoDB(logger zerolog.Logger) *GeoDB {
	return &GeoDB{tree: btree.New(2), logger: logger}
}

// GeoDB maps IPv4 addresses to country codes using an ordered range tree.
// PutGeoIPData swaps in a freshly built tree, so lookups running concurrently
// with an update keep reading a consistent snapshot.
type GeoDB struct {
	mu     sync.RWMutex
	tree   *btree.BTree
	logger zerolog.Logger
}

// PutGeoIPData validates the data set and replaces the current one.
func (db *GeoDB) PutGeoIPData(geoIPData []GeoIPDataRecord) (err error) {
	if err = db.validateGeoIPData(geoIPData); err != nil {
		db.logger.Err(err).Msg("Error while validating GeoIP data set")
		return
	}

	newTree := btree.New(2)
	for _, rec := range geoIPData {
		newTree.ReplaceOrInsert(newGeoIPTreeNode(rec))
	}

	db.mu.Lock()
	db.tree = newTree
	db.mu.Unlock()
	return
}

// GeoLookup implements waf.GeoDB.
func (db *GeoDB) GeoLookup(ipAddr string) (countryCode string, err error) {
	ip, err := ipaddresses.ParseIPAddress(ipAddr)
	if err != nil {
		return
	}

	db.mu.RLock()
	tree := db.tree
	db.mu.RUnlock()

	foundNode := tree.Get(geoIPTreeNode{StartIP: ip, EndIP: ip})

	// The data set does not contain known reserved addresses, so a miss for
	// those is normal. Log only misses for public addresses.
	if foundNode == nil || len(foundNode.(geoIPTreeNode).CountryCode) != 2 {
		if special, _ := ipaddresses.IsSpecialPurposeAddress(ipAddr); !special {
			db.logger.Warn().Msgf("GeoDB failed to look up record for IP address %s", ipAddr)
		}
		return
	}

	countryCode = foundNode.(geoIPTreeNode).CountryCode
	return
}

func (db *GeoDB) validateGeoIPData(geoIPData []GeoIPDataRecord) (err error) {
	sort.Slice(geoIPData, func(i, j int) bool {
		return geoIPData[i].StartIP < geoIPData[j].StartIP
	})

	for i, curr := range geoIPData {
		if curr.StartIP > curr.EndIP {
			errFmt := "GeoIP data record (%d, %d, %s) has StartIP greater than EndIP"
			err = fmt.Errorf(errFmt, curr.StartIP, curr.EndIP, curr.CountryCode)
			return
		}

		if i == 0 {
			continue
		}

		prev := geoIPData[i-1]
		if curr.StartIP <= prev.EndIP {
			errFmt := "overlap found between data records (%d, %d, %s) and (%d, %d, %s)"
			err = fmt.Errorf(errFmt, prev.StartIP, prev.EndIP, prev.CountryCode, curr.StartIP, curr.EndIP, curr.CountryCode)
			return
		}
	}

	return
}

type geoIPTreeNode struct {
	StartIP     uint32
	EndIP       uint32
	CountryCode string
}

func (node geoIPTreeNode) Less(other btree.Item) bool {
	return node.StartIP < other.(geoIPTreeNode).StartIP && node.EndIP < other.(geoIPTreeNode).EndIP
}

func newGeoIPTreeNode(rec GeoIPDataRecord) geoIPTreeNode {
	// Safeguard for data cleanness.
	countryCode := strings.ToUpper(strings.TrimSpace(rec.CountryCode))

	return geoIPTreeNode{
		StartIP:     rec.StartIP,
		EndIP:       rec.EndIP,
		CountryCode: countryCode,
	}
}
