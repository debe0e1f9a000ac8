package translate

import "sort"

// aliases maps the model identifiers the public surfaces advertise onto
// upstream model ids.
var aliases = map[string]string{
	"gpt-4o":                     "gemini-2.5-pro",
	"gpt-4o-mini":                "gemini-2.0-flash",
	"gpt-4-turbo":                "gemini-2.5-pro",
	"gpt-3.5-turbo":              "gemini-2.0-flash",
	"claude-3-opus-20240229":     "gemini-2.5-pro",
	"claude-3-5-sonnet-20241022": "gemini-2.5-pro",
	"claude-3-5-haiku-20241022":  "gemini-2.0-flash",
	"claude-3-haiku-20240307":    "gemini-2.0-flash",
}

// upstreamModels are the ids accepted verbatim.
var upstreamModels = map[string]struct{}{
	"gemini-2.5-pro":   {},
	"gemini-2.5-flash": {},
	"gemini-2.0-flash": {},
	"gemini-1.5-pro":   {},
	"gemini-1.5-flash": {},
}

// ResolveModel normalizes a requested model identifier. Unknown names are
// mapped to the fallback rather than rejected, so plausible-but-unlisted
// models keep working when clients upgrade before the gateway does.
func ResolveModel(name, fallback string) string {
	if mapped, ok := aliases[name]; ok {
		return mapped
	}
	if _, ok := upstreamModels[name]; ok {
		return name
	}
	return fallback
}

// Catalog lists every identifier the gateway advertises on /v1/models.
func Catalog() []string {
	out := make([]string, 0, len(aliases)+len(upstreamModels))
	for name := range aliases {
		out = append(out, name)
	}
	for name := range upstreamModels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
