package normalize

import (
	"strings"
	"unicode"
)

// Category groups canonical keys by the feed section they come from.
type Category string

const (
	CategoryGold     Category = "gold"
	CategoryCurrency Category = "currency"
	CategoryCrypto   Category = "crypto"
	CategoryIndex    Category = "index"
	CategorySymbol   Category = "symbol"
)

// wire field of each category inside a category block, in processing order.
var blockFields = []struct {
	Field    string
	Category Category
}{
	{"gold", CategoryGold},
	{"currency", CategoryCurrency},
	{"cryptocurrency", CategoryCrypto},
}

var goldKeys = map[string]string{
	"USD":             "dollar",
	"IR_COIN_EMAMI":   "gold_coin_emami",
	"IR_GOLD_18K":     "gold_gram_18",
	"IR_GOLD_24K":     "gold_gram_24",
	"IR_GOLD_MELTED":  "gold_melted",
	"XAUUSD":          "gold_ounce",
	"IR_COIN_1G":      "gold_coin_1g",
	"IR_COIN_QUARTER": "gold_coin_quarter",
	"IR_COIN_HALF":    "gold_coin_half",
	"IR_COIN_BAHAR":   "gold_coin_bahar",
}

var currencyKeys = map[string]string{
	"USD":      "dollar",
	"EUR":      "currency_euro",
	"GBP":      "currency_pound",
	"JPY":      "currency_yen",
	"AED":      "currency_dirham",
	"USDT_IRT": "usdt_toman",
	"KWD":      "currency_kuwait_dinar",
	"AUD":      "currency_australian_dollar",
	"CAD":      "currency_canadian_dollar",
	"CNY":      "currency_chinese_yuan",
	"TRY":      "currency_turkish_lira",
	"SAR":      "currency_saudi_riyal",
	"CHF":      "currency_swiss_franc",
	"INR":      "currency_indian_rupee",
	"PKR":      "currency_pakistani_rupee",
	"IQD":      "currency_iraqi_dinar",
	"SYP":      "currency_syrian_lira",
	"SEK":      "currency_swedish_krona",
	"QAR":      "currency_qatari_riyal",
	"OMR":      "currency_omani_rial",
	"BHD":      "currency_bahraini_dinar",
	"AFN":      "currency_afghan_afghani",
	"MYR":      "currency_malaysian_ringgit",
	"THB":      "currency_thai_baht",
	"RUB":      "currency_russian_ruble",
	"AZN":      "currency_azerbaijani_manat",
	"AMD":      "currency_armenian_dram",
	"GEL":      "currency_georgian_lari",
}

var cryptoKeys = map[string]string{
	"BTC":  "crypto_bitcoin",
	"ETH":  "crypto_ethereum",
	"USDT": "crypto_tether",
	"XRP":  "crypto_xrp",
	"BNB":  "crypto_bnb",
	"SOL":  "crypto_solana",
	"USDC": "crypto_usd_coin",
	"TRX":  "crypto_tron",
	"DOGE": "crypto_dogecoin",
	"ADA":  "crypto_cardano",
	"LINK": "crypto_chainlink",
	"XLM":  "crypto_stellar",
	"AVAX": "crypto_avalanche",
	"SHIB": "crypto_shiba_inu",
	"LTC":  "crypto_litecoin",
	"DOT":  "crypto_polkadot",
	"UNI":  "crypto_uniswap",
	"ATOM": "crypto_cosmos",
	"FIL":  "crypto_filecoin",
}

// IndexLabel maps a substring of an index display name to a canonical key.
type IndexLabel struct {
	Contains string `yaml:"contains" json:"contains"`
	Key      string `yaml:"key" json:"key"`
}

// DefaultIndexLabels is checked in order; the first label contained in the name wins.
// "شاخص کل" precedes every other label, so "شاخص کل فرابورس" resolves to bourse_total.
var DefaultIndexLabels = []IndexLabel{
	{Contains: "شاخص کل", Key: "bourse_total"},
	{Contains: "شاخص هم\u200cوزن", Key: "bourse_equal_weight"},
	{Contains: "شاخص فرابورس", Key: "bourse_farabourse"},
	{Contains: "شاخص قیمت", Key: "bourse_price"},
	{Contains: "شاخص آزاد شناور", Key: "bourse_free_float"},
	{Contains: "شاخص بازار اول", Key: "bourse_market1"},
	{Contains: "شاخص بازار دوم", Key: "bourse_market2"},
}

// KeyTable resolves feed identifiers to canonical keys.
// It holds no mutable state; a zero KeyTable uses DefaultIndexLabels.
type KeyTable struct {
	indexLabels []IndexLabel
}

func NewKeyTable(indexLabels []IndexLabel) *KeyTable {
	labels := make([]IndexLabel, 0, len(indexLabels))
	for _, l := range indexLabels {
		if strings.TrimSpace(l.Contains) == "" || strings.TrimSpace(l.Key) == "" {
			continue
		}
		labels = append(labels, l)
	}
	return &KeyTable{indexLabels: labels}
}

func (t *KeyTable) labels() []IndexLabel {
	if t == nil || len(t.indexLabels) == 0 {
		return DefaultIndexLabels
	}
	return t.indexLabels
}

// IndexLabels returns the ordered label list in effect.
func (t *KeyTable) IndexLabels() []IndexLabel {
	return append([]IndexLabel(nil), t.labels()...)
}

// AssetKey resolves a category-block code. Unknown codes fall back to
// "{category}_{lower(code)}".
func (t *KeyTable) AssetKey(cat Category, code string) string {
	var table map[string]string
	switch cat {
	case CategoryGold:
		table = goldKeys
	case CategoryCurrency:
		table = currencyKeys
	case CategoryCrypto:
		table = cryptoKeys
	}
	if k, ok := table[code]; ok {
		return k
	}
	return string(cat) + "_" + strings.ToLower(code)
}

// IndexKey classifies an index display name by priority-ordered substring match,
// falling back to "bourse_{slug(name)}".
func (t *KeyTable) IndexKey(name string) string {
	for _, l := range t.labels() {
		if strings.Contains(name, l.Contains) {
			return l.Key
		}
	}
	return "bourse_" + Slug(name)
}

// SymbolKey is the canonical key of a tradable instrument's last price.
func (t *KeyTable) SymbolKey(code string) string {
	return "symbol_" + code
}

// Slug replaces whitespace and the separators / - \ with underscores.
func Slug(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		switch r {
		case '/', '-', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}
