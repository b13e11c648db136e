package discovery

import "strings"

// aggregatorHosts are known listing/directory sites whose outbound links are
// mostly internal detail pages, requiring two-stage link extraction.
var aggregatorHosts = []string{
	"coinmarketcap.com",
	"coingecko.com",
	"defillama.com",
	"dappradar.com",
	"cryptorank.io",
	"icodrops.com",
	"chainbroker.io",
	"producthunt.com",
	"alchemy.com",
	"daocentral.com",
}

// IsAggregatorHost reports whether the host belongs to a known
// listing/directory site. Subdomains match their parent.
func IsAggregatorHost(host string) bool {
	host = strings.ToLower(host)
	for _, agg := range aggregatorHosts {
		if host == agg || strings.HasSuffix(host, "."+agg) {
			return true
		}
	}
	return false
}
