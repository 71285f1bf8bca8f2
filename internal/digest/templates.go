package digest

import (
	"strings"

	"market-digest-bot/internal/normalize"
)

// Kind names one digest.
type Kind string

const (
	KindGoldDollar Kind = "gold_dollar"
	KindCurrency   Kind = "currency"
	KindCrypto     Kind = "crypto"
	KindBourse     Kind = "bourse"
	KindSymbols    Kind = "symbols"
)

// Kinds lists every digest in display order.
var Kinds = []Kind{KindGoldDollar, KindCurrency, KindCrypto, KindBourse, KindSymbols}

// Format selects how a line value is printed.
type Format int

const (
	// FormatInteger truncates to an integer with thousands separators.
	FormatInteger Format = iota
	// FormatDollar prints "$" and two decimals with thousands separators.
	FormatDollar
)

// Conversion multiplies the displayed value when it is below Below.
// Tether is sometimes quoted in dollars instead of toman.
type Conversion struct {
	Below      float64
	Multiplier float64
}

func (c *Conversion) apply(v float64) float64 {
	if c == nil || c.Multiplier == 0 || v >= c.Below {
		return v
	}
	return v * c.Multiplier
}

// WellKnown is a fixed line of a template.
type WellKnown struct {
	Key        string
	Icon       string
	Label      string
	Unit       string
	Format     Format
	Conversion *Conversion
}

// Template describes one digest.
type Template struct {
	Kind   Kind
	Title  string
	NoData string
	Lines  []WellKnown

	// Members are the record categories whose other keys are listed after Lines.
	Members []normalize.Category
	Icon    string
	Unit    string
	Format  Format
	// LabelPrefix is stripped from a key to build a generic label.
	LabelPrefix string

	// Ranked templates list the TopN members by value instead of Lines.
	Ranked bool
	TopN   int
}

const (
	unitToman = "تومان"
	unitRial  = "ریال"
	unitUSD   = "دلار"
)

// Catalog maps each kind to its template.
type Catalog map[Kind]Template

// DefaultCatalog builds the stock templates. usdToToman converts tether prices
// quoted in dollars; zero disables the conversion.
func DefaultCatalog(usdToToman float64) Catalog {
	var tether *Conversion
	if usdToToman > 0 {
		tether = &Conversion{Below: 1000, Multiplier: usdToToman}
	}

	gold := Template{
		Kind:   KindGoldDollar,
		Title:  "🏆 قیمت لحظه‌ای طلا و دلار",
		NoData: "❌ خطا در دریافت اطلاعات طلا و دلار",
		Lines: []WellKnown{
			{Key: "dollar", Icon: "💵", Label: "دلار", Unit: unitToman},
			{Key: "gold_coin_emami", Icon: "🪙", Label: "سکه امامی", Unit: unitToman},
			{Key: "gold_gram_18", Icon: "🥇", Label: "گرم ۱۸ عیار", Unit: unitToman},
			{Key: "gold_gram_24", Icon: "🥇", Label: "گرم ۲۴ عیار", Unit: unitToman},
			{Key: "gold_melted", Icon: "🥇", Label: "طلای آب‌شده", Unit: unitToman},
			{Key: "gold_ounce", Icon: "🥇", Label: "انس طلا", Unit: unitUSD},
			{Key: "gold_coin_1g", Icon: "🪙", Label: "سکه یک گرمی", Unit: unitToman},
			{Key: "gold_coin_quarter", Icon: "🪙", Label: "ربع سکه", Unit: unitToman},
			{Key: "gold_coin_half", Icon: "🪙", Label: "نیم سکه", Unit: unitToman},
			{Key: "gold_coin_bahar", Icon: "🪙", Label: "سکه بهار آزادی", Unit: unitToman},
		},
		Members:     []normalize.Category{normalize.CategoryGold},
		Icon:        "🥇",
		Unit:        unitToman,
		LabelPrefix: "gold_",
	}

	currency := Template{
		Kind:        KindCurrency,
		Title:       "🌍 قیمت ارزهای جهانی",
		NoData:      "❌ خطا در دریافت اطلاعات ارزها",
		Members:     []normalize.Category{normalize.CategoryCurrency},
		Icon:        "💱",
		Unit:        unitToman,
		LabelPrefix: "currency_",
	}
	for _, c := range []struct{ key, label string }{
		{"currency_euro", "یورو"},
		{"currency_pound", "پوند"},
		{"currency_yen", "ین ژاپن"},
		{"currency_dirham", "درهم امارات"},
		{"currency_kuwait_dinar", "دینار کویت"},
		{"currency_australian_dollar", "دلار استرالیا"},
		{"currency_canadian_dollar", "دلار کانادا"},
		{"currency_chinese_yuan", "یوآن چین"},
		{"currency_turkish_lira", "لیر ترکیه"},
		{"currency_saudi_riyal", "ریال عربستان"},
		{"currency_swiss_franc", "فرانک سوئیس"},
		{"currency_indian_rupee", "روپیه هند"},
		{"currency_pakistani_rupee", "روپیه پاکستان"},
		{"currency_iraqi_dinar", "دینار عراق"},
		{"currency_syrian_lira", "لیر سوریه"},
		{"currency_swedish_krona", "کرون سوئد"},
		{"currency_qatari_riyal", "ریال قطر"},
		{"currency_omani_rial", "ریال عمان"},
		{"currency_bahraini_dinar", "دینار بحرین"},
		{"currency_afghan_afghani", "افغانی"},
		{"currency_malaysian_ringgit", "رینگیت مالزی"},
		{"currency_thai_baht", "بات تایلند"},
		{"currency_russian_ruble", "روبل روسیه"},
		{"currency_azerbaijani_manat", "منات آذربایجان"},
		{"currency_armenian_dram", "درام ارمنستان"},
		{"currency_georgian_lari", "لاری گرجستان"},
		{"usdt_toman", "تتر (تومان)"},
	} {
		currency.Lines = append(currency.Lines, WellKnown{Key: c.key, Icon: "💱", Label: c.label, Unit: unitToman})
	}

	crypto := Template{
		Kind:        KindCrypto,
		Title:       "🪙 قیمت ارزهای دیجیتال",
		NoData:      "❌ خطا در دریافت اطلاعات ارزهای دیجیتال",
		Members:     []normalize.Category{normalize.CategoryCrypto},
		Icon:        "💎",
		Format:      FormatDollar,
		LabelPrefix: "crypto_",
	}
	for _, c := range []struct{ key, label string }{
		{"crypto_bitcoin", "بیت‌کوین"},
		{"crypto_ethereum", "اتریوم"},
		{"crypto_tether", "تتر"},
		{"crypto_xrp", "ایکس‌آر‌پی"},
		{"crypto_bnb", "بی‌ان‌بی"},
		{"crypto_solana", "سولانا"},
		{"crypto_usd_coin", "یواس‌دی کوین"},
		{"crypto_tron", "ترون"},
		{"crypto_dogecoin", "دوج‌کوین"},
		{"crypto_cardano", "کاردانو"},
		{"crypto_chainlink", "چین‌لینک"},
		{"crypto_stellar", "استلار"},
		{"crypto_avalanche", "آوالانچ"},
		{"crypto_shiba_inu", "شیبا اینو"},
		{"crypto_litecoin", "لایت‌کوین"},
		{"crypto_polkadot", "پولکادات"},
		{"crypto_uniswap", "یونی‌سواپ"},
		{"crypto_cosmos", "کازماس"},
		{"crypto_filecoin", "فایل‌کوین"},
	} {
		w := WellKnown{Key: c.key, Icon: "💎", Label: c.label, Format: FormatDollar}
		if c.key == "crypto_tether" {
			w.Unit = unitToman
			w.Format = FormatInteger
			w.Conversion = tether
		}
		crypto.Lines = append(crypto.Lines, w)
	}

	bourse := Template{
		Kind:        KindBourse,
		Title:       "📈 شاخص‌های بورس ایران",
		NoData:      "❌ خطا در دریافت اطلاعات بورس",
		Members:     []normalize.Category{normalize.CategoryIndex},
		Icon:        "📊",
		LabelPrefix: "bourse_",
	}
	for _, l := range normalize.DefaultIndexLabels {
		bourse.Lines = append(bourse.Lines, WellKnown{Key: l.Key, Icon: "📊", Label: l.Contains})
	}

	symbols := Template{
		Kind:        KindSymbols,
		Title:       "📈 نمادهای برتر بورس ایران",
		NoData:      "❌ خطا در دریافت اطلاعات نمادهای بورس",
		Members:     []normalize.Category{normalize.CategorySymbol},
		Icon:        "📊",
		Unit:        unitRial,
		LabelPrefix: "symbol_",
		Ranked:      true,
		TopN:        10,
	}

	return Catalog{
		KindGoldDollar: gold,
		KindCurrency:   currency,
		KindCrypto:     crypto,
		KindBourse:     bourse,
		KindSymbols:    symbols,
	}
}

// wellKnownKeys collects the fixed keys of every template.
func (c Catalog) wellKnownKeys() map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range c {
		for _, l := range t.Lines {
			out[l.Key] = struct{}{}
		}
	}
	return out
}

func (t Template) member(cat normalize.Category) bool {
	for _, m := range t.Members {
		if m == cat {
			return true
		}
	}
	return false
}

// genericLabel derives a label from a canonical key: bourse_foo_bar -> "foo bar".
func (t Template) genericLabel(key string) string {
	return strings.ReplaceAll(strings.TrimPrefix(key, t.LabelPrefix), "_", " ")
}
