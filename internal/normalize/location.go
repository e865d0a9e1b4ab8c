package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// Location is a normalized location cell.
type Location struct {
	Text  string // first entry, resolved; the record's Location
	Area  string
	City  string
	State string
}

// LocationAliases maps short forms used by listing sites to their full
// names. Keys are lowercase with dots removed and spaces collapsed.
var LocationAliases = map[string]string{
	"vi":              "Victoria Island",
	"v i":             "Victoria Island",
	"victoria is":     "Victoria Island",
	"lekki ph 1":      "Lekki Phase 1",
	"lekki ph1":       "Lekki Phase 1",
	"lekki phase i":   "Lekki Phase 1",
	"lekki phase one": "Lekki Phase 1",
	"lekki ph 2":      "Lekki Phase 2",
	"lekki phase ii":  "Lekki Phase 2",
	"gra ikeja":       "Ikeja GRA",
	"ikeja gra":       "Ikeja GRA",
	"omole ph 1":      "Omole Phase 1",
	"omole phase i":   "Omole Phase 1",
	"omole ph 2":      "Omole Phase 2",
	"vgc":             "Victoria Garden City",
	"festac":          "Festac Town",
	"ph":              "Port Harcourt",
	"phc":             "Port Harcourt",
	"wuse ii":         "Wuse 2",
	"wuse2":           "Wuse 2",
	"fct":             "Abuja",
	"abj":             "Abuja",
}

type areaInfo struct {
	city  string
	state string
}

// AreaStates resolves well-known areas to their city and state.
// Keys are lowercase resolved names.
var AreaStates = map[string]areaInfo{
	"victoria island":      {"Lagos", "Lagos"},
	"ikoyi":                {"Lagos", "Lagos"},
	"banana island":        {"Lagos", "Lagos"},
	"oniru":                {"Lagos", "Lagos"},
	"lekki":                {"Lagos", "Lagos"},
	"lekki phase 1":        {"Lagos", "Lagos"},
	"lekki phase 2":        {"Lagos", "Lagos"},
	"ajah":                 {"Lagos", "Lagos"},
	"chevron":              {"Lagos", "Lagos"},
	"victoria garden city": {"Lagos", "Lagos"},
	"ikeja":                {"Lagos", "Lagos"},
	"ikeja gra":            {"Lagos", "Lagos"},
	"omole phase 1":        {"Lagos", "Lagos"},
	"omole phase 2":        {"Lagos", "Lagos"},
	"magodo":               {"Lagos", "Lagos"},
	"maryland":             {"Lagos", "Lagos"},
	"gbagada":              {"Lagos", "Lagos"},
	"yaba":                 {"Lagos", "Lagos"},
	"surulere":             {"Lagos", "Lagos"},
	"ogudu":                {"Lagos", "Lagos"},
	"ilupeju":              {"Lagos", "Lagos"},
	"apapa":                {"Lagos", "Lagos"},
	"festac town":          {"Lagos", "Lagos"},
	"ojodu":                {"Lagos", "Lagos"},
	"maitama":              {"Abuja", "FCT"},
	"asokoro":              {"Abuja", "FCT"},
	"wuse":                 {"Abuja", "FCT"},
	"wuse 2":               {"Abuja", "FCT"},
	"garki":                {"Abuja", "FCT"},
	"jabi":                 {"Abuja", "FCT"},
	"gwarinpa":             {"Abuja", "FCT"},
	"katampe":              {"Abuja", "FCT"},
	"guzape":               {"Abuja", "FCT"},
	"life camp":            {"Abuja", "FCT"},
	"lokogoma":             {"Abuja", "FCT"},
	"abuja":                {"Abuja", "FCT"},
	"port harcourt":        {"Port Harcourt", "Rivers"},
	"trans amadi":          {"Port Harcourt", "Rivers"},
	"bodija":               {"Ibadan", "Oyo"},
	"ibadan":               {"Ibadan", "Oyo"},
	"enugu":                {"Enugu", "Enugu"},
	"independence layout":  {"Enugu", "Enugu"},
}

// NigerianStates maps lowercase state names to their canonical form.
var NigerianStates = map[string]string{
	"abia":                      "Abia",
	"adamawa":                   "Adamawa",
	"akwa ibom":                 "Akwa Ibom",
	"anambra":                   "Anambra",
	"bauchi":                    "Bauchi",
	"bayelsa":                   "Bayelsa",
	"benue":                     "Benue",
	"borno":                     "Borno",
	"cross river":               "Cross River",
	"delta":                     "Delta",
	"ebonyi":                    "Ebonyi",
	"edo":                       "Edo",
	"ekiti":                     "Ekiti",
	"enugu":                     "Enugu",
	"gombe":                     "Gombe",
	"imo":                       "Imo",
	"jigawa":                    "Jigawa",
	"kaduna":                    "Kaduna",
	"kano":                      "Kano",
	"katsina":                   "Katsina",
	"kebbi":                     "Kebbi",
	"kogi":                      "Kogi",
	"kwara":                     "Kwara",
	"lagos":                     "Lagos",
	"nasarawa":                  "Nasarawa",
	"niger":                     "Niger",
	"ogun":                      "Ogun",
	"ondo":                      "Ondo",
	"osun":                      "Osun",
	"oyo":                       "Oyo",
	"plateau":                   "Plateau",
	"rivers":                    "Rivers",
	"sokoto":                    "Sokoto",
	"taraba":                    "Taraba",
	"yobe":                      "Yobe",
	"zamfara":                   "Zamfara",
	"fct":                       "FCT",
	"federal capital territory": "FCT",
}

var (
	locationSplitRegex = regexp.MustCompile(`[,;|/]`)
	stateSuffixRegex   = regexp.MustCompile(`\s+state$`)
)

// NormalizeState returns the canonical name of a Nigerian state, accepting
// a trailing "State". ok is false when s names no state.
func NormalizeState(s string) (string, bool) {
	key := aliasKey(s)
	key = stateSuffixRegex.ReplaceAllString(key, "")
	name, ok := NigerianStates[key]
	return name, ok
}

// ParseLocation normalizes a location cell. Delimited lists are split on
// , ; | and /; the first entry becomes Text and Area, later entries fill
// State (when they name a state) and City. Missing City and State are
// derived from AreaStates.
func ParseLocation(s string) Location {
	s = core.CollapseSpace(core.CleanCell(s))
	if s == "" {
		return Location{}
	}

	var parts []string
	for _, p := range locationSplitRegex.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Location{}
	}

	var loc Location
	first := ResolveLocation(parts[0])
	loc.Text = first
	if state, ok := NormalizeState(parts[0]); ok && !isKnownArea(parts[0]) {
		loc.State = state
	} else {
		loc.Area = first
	}

	for _, p := range parts[1:] {
		if state, ok := NormalizeState(p); ok {
			if loc.State == "" {
				loc.State = state
			}
			continue
		}
		if loc.City == "" {
			loc.City = ResolveLocation(p)
		}
	}

	if info, ok := AreaStates[strings.ToLower(loc.Area)]; ok {
		if loc.City == "" {
			loc.City = info.city
		}
		if loc.State == "" {
			loc.State = info.state
		}
	}
	return loc
}

// ResolveLocation resolves one entry through LocationAliases, else
// title-cases it. Known acronyms such as GRA stay uppercase.
func ResolveLocation(s string) string {
	s = core.CollapseSpace(s)
	if full, ok := LocationAliases[aliasKey(s)]; ok {
		return full
	}
	return titleCase(s)
}

func isKnownArea(s string) bool {
	_, ok := AreaStates[strings.ToLower(ResolveLocation(s))]
	return ok
}

// aliasKey lowercases s, drops dots and collapses whitespace.
func aliasKey(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, ".", " "))
	return core.CollapseSpace(s)
}

func titleCase(s string) string {
	caser := cases.Title(language.English)
	words := strings.Fields(s)
	for i, w := range words {
		if isAcronym(w) {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// Acronyms lists the words kept uppercase when a location is title-cased.
var Acronyms = map[string]bool{
	"GRA":   true,
	"VGC":   true,
	"FCT":   true,
	"CBD":   true,
	"FHA":   true,
	"LSDPC": true,
	"NNPC":  true,
}

func isAcronym(w string) bool {
	return Acronyms[strings.ToUpper(w)]
}
