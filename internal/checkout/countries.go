package checkout

// countryNames maps ISO 3166-1 alpha-2 codes used by the supplier catalog
// to display names. Unknown codes fall through to the raw code.
var countryNames = map[string]string{
	"AE": "United Arab Emirates",
	"AR": "Argentina",
	"AT": "Austria",
	"AU": "Australia",
	"BE": "Belgium",
	"BG": "Bulgaria",
	"BR": "Brazil",
	"CA": "Canada",
	"CH": "Switzerland",
	"CL": "Chile",
	"CN": "China",
	"CO": "Colombia",
	"CZ": "Czechia",
	"DE": "Germany",
	"DK": "Denmark",
	"EG": "Egypt",
	"ES": "Spain",
	"FI": "Finland",
	"FR": "France",
	"GB": "United Kingdom",
	"GR": "Greece",
	"HK": "Hong Kong",
	"HR": "Croatia",
	"HU": "Hungary",
	"ID": "Indonesia",
	"IE": "Ireland",
	"IL": "Israel",
	"IN": "India",
	"IS": "Iceland",
	"IT": "Italy",
	"JP": "Japan",
	"KE": "Kenya",
	"KR": "South Korea",
	"MA": "Morocco",
	"MX": "Mexico",
	"MY": "Malaysia",
	"NG": "Nigeria",
	"NL": "Netherlands",
	"NO": "Norway",
	"NZ": "New Zealand",
	"PE": "Peru",
	"PH": "Philippines",
	"PL": "Poland",
	"PT": "Portugal",
	"QA": "Qatar",
	"RO": "Romania",
	"RS": "Serbia",
	"SA": "Saudi Arabia",
	"SE": "Sweden",
	"SG": "Singapore",
	"TH": "Thailand",
	"TR": "Turkey",
	"TW": "Taiwan",
	"UA": "Ukraine",
	"US": "United States",
	"VN": "Vietnam",
	"ZA": "South Africa",
}

func countryName(code string) string {
	if name, ok := countryNames[code]; ok {
		return name
	}
	return code
}
