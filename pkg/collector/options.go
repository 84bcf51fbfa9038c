package collector

import (
	"fmt"
	"sort"
	"strings"
)

// Options selects which probe categories run.
type Options uint

const (
	Accessibility Options = 1 << iota
	ApplePay
	Preferences
	Screen
	System
	Watch

	All = Accessibility | ApplePay | Preferences | Screen | System | Watch
)

var optionNames = map[string]Options{
	"accessibility": Accessibility,
	"apple_pay":     ApplePay,
	"preferences":   Preferences,
	"screen":        Screen,
	"system":        System,
	"watch":         Watch,
	"all":           All,
}

// Has reports whether every bit of other is set in o.
func (o Options) Has(other Options) bool {
	return other != 0 && o&other == other
}

func (o Options) String() string {
	var names []string
	for name, bit := range optionNames {
		if bit != All && o.Has(bit) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// ParseOptions combines option names such as "system" or "all".
func ParseOptions(names []string) (Options, error) {
	var o Options
	for _, name := range names {
		bit, ok := optionNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown stats option %q", name)
		}
		o |= bit
	}
	return o, nil
}
