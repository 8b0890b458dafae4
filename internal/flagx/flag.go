// Package flagx picks a component's own flags out of a shared argument list,
// so that config layers can each parse their subset with the standard flag
// package.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// Set describes the flags a component owns. Values take an argument
// ("-c conf.json" or "-c=conf.json"); Bools never consume the next token.
type Set struct {
	Values []string
	Bools  []string
}

// Filter returns the owned flags (and their values) in their original order.
func (s Set) Filter(args []string) []string {
	flags, _ := s.Split(args)
	return flags
}

// Split separates owned flags from everything else. Unknown flags and
// positional arguments end up in rest, in order.
func (s Set) Split(args []string) (flags, rest []string) {
	values := toSet(s.Values)
	bools := toSet(s.Bools)

	flags = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := values[name]; ok {
				flags = append(flags, arg)
				continue
			}
			if _, ok := bools[name]; ok {
				flags = append(flags, arg)
				continue
			}
			rest = append(rest, arg)
			continue
		}

		if _, ok := bools[arg]; ok {
			flags = append(flags, arg)
			continue
		}

		if _, ok := values[arg]; ok {
			flags = append(flags, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}

		rest = append(rest, arg)
	}

	return flags, rest
}

// FilterArgs keeps only the allowed value flags from args.
func FilterArgs(args []string, allowedFlags []string) []string {
	return Set{Values: allowedFlags}.Filter(args)
}

// ConfigPath extracts the -c / -config value from args, last one wins.
func ConfigPath(args []string) string {
	var config string
	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))
	return config
}

// JsonConfigFlags is ConfigPath over os.Args.
func JsonConfigFlags() string {
	return ConfigPath(os.Args[1:])
}

func toSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
