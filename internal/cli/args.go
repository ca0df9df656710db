package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Version is the fallback version, set at link time with
// -ldflags "-X github.com/vk/magetbrain-bids/internal/cli.Version=...".
var Version = "dev"

// VersionFile is read for the version first; the container image writes
// the pipeline version there.
var VersionFile = "/version"

func version() string {
	if data, err := os.ReadFile(VersionFile); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}
	return Version
}

// stringList is a repeatable flag value.
type stringList []string

func (s *stringList) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, " ")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// splitArgs separates flags from positional arguments so that, as in other
// BIDS Apps, options may appear anywhere on the command line. A list flag
// takes every following argument up to the next one starting with "-".
func splitArgs(fs *flag.FlagSet, args []string) (flags, positionals []string, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			positionals = append(positionals, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			flags = append(flags, arg)
			continue
		}
		f := fs.Lookup(name)
		if f == nil {
			// Unknown flags, -h included, are reported by flag.Parse.
			flags = append(flags, arg)
			continue
		}

		if _, ok := f.Value.(*stringList); ok {
			j := i + 1
			for ; j < len(args) && !strings.HasPrefix(args[j], "-"); j++ {
				flags = append(flags, "-"+name+"="+args[j])
			}
			if j == i+1 {
				return nil, nil, fmt.Errorf("flag needs at least one argument: -%s", name)
			}
			i = j - 1
			continue
		}

		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			flags = append(flags, arg)
			continue
		}

		flags = append(flags, arg)
		if i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return flags, positionals, nil
}
