package analyzer

import (
	"fmt"
	"os"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

// DefaultMaxBytes is the largest accepted source, in bytes.
const DefaultMaxBytes = 64 * 1024

var (
	defaultAllowedModules = []string{
		// math and randomness
		"math", "cmath", "random", "statistics", "decimal", "fractions", "numbers",
		// iteration helpers and collections
		"itertools", "functools", "operator", "collections", "heapq", "bisect", "array", "copy",
		// text
		"string", "re", "textwrap", "unicodedata",
		// date and time
		"datetime", "time", "calendar",
		// structured data
		"json", "csv", "base64", "struct",
		// typing helpers
		"typing", "dataclasses", "enum",
	}

	defaultBannedModules = []string{
		// operating system and filesystem
		"os", "sys", "posix", "nt", "shutil", "pathlib", "tempfile", "glob", "io",
		// process spawning
		"subprocess", "multiprocessing", "threading", "_thread", "pty", "signal", "concurrent",
		// network
		"socket", "socketserver", "ssl", "select", "selectors", "asyncio",
		"urllib", "http", "ftplib", "smtplib", "telnetlib", "requests",
		// dynamic import and code loading
		"importlib", "imp", "pkgutil", "runpy", "zipimport", "builtins", "ctypes",
		"code", "codeop", "pickle", "marshal", "shelve",
	}

	defaultBannedFunctions = []string{
		"eval", "exec", "compile", "__import__",
		"importlib.import_module", "importlib.__import__",
	}

	// Dunder names that reach builtins or other modules' globals without an
	// import statement.
	defaultBannedNames = []string{
		"__builtins__", "__globals__", "__subclasses__", "__loader__", "__spec__",
		"__code__", "__closure__", "__func__", "__self__", "__dict__",
		"__getattribute__", "__reduce__", "__reduce_ex__",
		"f_globals", "f_locals", "f_builtins", "f_back", "gi_frame", "cr_frame", "tb_frame",
	}
)

// Policy is the static analyzer's security policy.
type Policy struct {
	MaxBytes        int
	AllowedModules  mapset.Set[string]
	BannedModules   mapset.Set[string]
	BannedFunctions mapset.Set[string]
	// BannedNames are identifiers, attributes and string constants that are
	// rejected wherever they appear.
	BannedNames mapset.Set[string]
}

// DefaultPolicy returns the policy shipped with the judge.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:        DefaultMaxBytes,
		AllowedModules:  mapset.NewSet(defaultAllowedModules...),
		BannedModules:   mapset.NewSet(defaultBannedModules...),
		BannedFunctions: mapset.NewSet(defaultBannedFunctions...),
		BannedNames:     mapset.NewSet(defaultBannedNames...),
	}
}

type policyFile struct {
	MaxBytes        int      `toml:"max_bytes"`
	AllowedModules  []string `toml:"allowed_modules"`
	ExtraAllowed    []string `toml:"extra_allowed_modules"`
	BannedModules   []string `toml:"banned_modules"`
	BannedFunctions []string `toml:"banned_functions"`
	BannedNames     []string `toml:"banned_names"`
}

// LoadPolicy reads a TOML policy file. Lists present in the file replace the
// defaults; extra_allowed_modules extends the allow-list instead.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy: %w", err)
	}
	var f policyFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return p, fmt.Errorf("parse policy %s: %w", path, err)
	}

	if f.MaxBytes > 0 {
		p.MaxBytes = f.MaxBytes
	}
	if len(f.AllowedModules) > 0 {
		p.AllowedModules = mapset.NewSet(trimAll(f.AllowedModules)...)
	}
	if len(f.ExtraAllowed) > 0 {
		p.AllowedModules.Append(trimAll(f.ExtraAllowed)...)
	}
	if len(f.BannedModules) > 0 {
		p.BannedModules = mapset.NewSet(trimAll(f.BannedModules)...)
	}
	if len(f.BannedFunctions) > 0 {
		p.BannedFunctions = mapset.NewSet(trimAll(f.BannedFunctions)...)
	}
	if len(f.BannedNames) > 0 {
		p.BannedNames = mapset.NewSet(trimAll(f.BannedNames)...)
	}

	if overlap := p.AllowedModules.Intersect(p.BannedModules); overlap.Cardinality() > 0 {
		return p, fmt.Errorf("policy %s: modules both allowed and banned: %v", path, overlap.ToSlice())
	}
	return p, nil
}

// Info returns the policy with sorted lists, for display.
func (p Policy) Info(limits domain.Limits) domain.PolicyInfo {
	return domain.PolicyInfo{
		Language:        "python",
		MaxSourceBytes:  p.MaxBytes,
		AllowedModules:  sorted(p.AllowedModules),
		BannedModules:   sorted(p.BannedModules),
		BannedFunctions: sorted(p.BannedFunctions),
		BannedNames:     sorted(p.BannedNames),
		DefaultLimits:   limits,
	}
}

func sorted(s mapset.Set[string]) []string {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// rootModule returns the top-level package of a dotted module path.
func rootModule(module string) string {
	if i := strings.IndexByte(module, '.'); i >= 0 {
		return module[:i]
	}
	return module
}
