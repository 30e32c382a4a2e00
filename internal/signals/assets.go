package signals

import "strings"

// Major pairs the broker accepts in direct format.
var majorPairs = map[string]bool{
	"EURUSD": true, "GBPUSD": true, "USDJPY": true, "USDCHF": true,
	"USDCAD": true, "AUDUSD": true, "NZDUSD": true,
}

// Cross pairs the broker only lists as OTC instruments.
var crossPairsOTC = map[string]bool{
	"AUDCAD": true, "AUDCHF": true, "AUDJPY": true, "AUDNZD": true,
	"CADCHF": true, "CADJPY": true, "CHFJPY": true, "CHFNOK": true,
	"EURCHF": true, "EURGBP": true, "EURHUF": true, "EURJPY": true,
	"EURNZD": true, "EURRUB": true, "GBPAUD": true, "GBPJPY": true,
	"NZDJPY": true, "USDRUB": true,
}

// NormalizeAsset maps a scraped asset name to the broker's instrument name.
// Channel messages carry several spellings: "GBPJPY-OTC", "GBPJPY-OTCp",
// "gbpjpy_otc", or a bare pair. The second return value reports whether the
// instrument is known to the broker; unknown assets pass through unchanged so
// the session can route them to paper mode.
func NormalizeAsset(csvAsset string) (string, bool) {
	asset := strings.TrimSpace(csvAsset)
	if asset == "" {
		return "", false
	}

	var base string
	switch {
	case strings.HasSuffix(strings.ToLower(asset), "_otc"):
		base = strings.ToUpper(asset[:len(asset)-4])
		return base + "_otc", majorPairs[base] || crossPairsOTC[base]
	case strings.HasSuffix(asset, "-OTCp"):
		base = strings.ToUpper(asset[:len(asset)-5])
		return base + "_otc", majorPairs[base] || crossPairsOTC[base]
	case strings.HasSuffix(asset, "-OTC"):
		base = strings.ToUpper(asset[:len(asset)-4])
		return base + "_otc", majorPairs[base] || crossPairsOTC[base]
	default:
		base = strings.ToUpper(asset)
	}

	if majorPairs[base] {
		return base, true
	}
	if crossPairsOTC[base] {
		return base + "_otc", true
	}
	return base, false
}
