package collector

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/bilal/devstats/pkg/snapshot"
)

const (
	KeySystemModelID           = "System_model_id"
	KeySystemOSName            = "System_OS_name"
	KeySystemPreferredLanguage = "System_Preferred_language"
	KeySystemDutchRegion       = "System_Dutch_region"
)

var dutchRegion = language.MustParseRegion("NL")

// SystemProbe reports platform and locale signals. lookupEnv defaults to
// os.Getenv.
func SystemProbe(lookupEnv func(string) string) Probe {
	if lookupEnv == nil {
		lookupEnv = os.Getenv
	}
	return ProbeFunc(System, func(context.Context) (snapshot.Snapshot, error) {
		tag, ok := processLocale(lookupEnv)

		preferred := ""
		dutch := false
		if ok {
			preferred = tag.String()
			region, conf := tag.Region()
			dutch = conf == language.Exact && region == dutchRegion
		}

		return snapshot.Snapshot{
			KeySystemModelID:           runtime.GOARCH,
			KeySystemOSName:            runtime.GOOS,
			KeySystemPreferredLanguage: preferred,
			KeySystemDutchRegion:       strconv.FormatBool(dutch),
		}, nil
	})
}

// processLocale resolves the POSIX locale the way libc does: LC_ALL, then
// LC_MESSAGES, then LANG.
func processLocale(lookupEnv func(string) string) (language.Tag, bool) {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		raw := lookupEnv(key)
		if raw == "" {
			continue
		}
		return parsePOSIXLocale(raw)
	}
	return language.Und, false
}

// parsePOSIXLocale turns "nl_NL.UTF-8@euro" into nl-NL.
func parsePOSIXLocale(raw string) (language.Tag, bool) {
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "C" || raw == "POSIX" {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}
