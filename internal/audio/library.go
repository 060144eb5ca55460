package audio

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"path"
	"strings"

	"github.com/ChuLiYu/bounce/pkg/types"
)

// Library maps clip and group names to clips. Lookups that miss return nil
// (or the zero clip) rather than an error.
type Library struct {
	base   string
	clips  map[string]types.Clip
	groups map[string][]types.Clip
}

// NewLibrary builds a library from named groups.
func NewLibrary(groups map[string][]types.Clip) *Library {
	l := &Library{clips: make(map[string]types.Clip), groups: make(map[string][]types.Clip)}
	for name, clips := range groups {
		l.AddGroup(name, clips)
	}
	return l
}

// ParseList reads a sound effects list. The first meaningful line is the
// base path; every following line is either a single clip path or
// "group, path, path, ...". Blank lines and lines starting with // are skipped.
func ParseList(r io.Reader) (*Library, error) {
	l := NewLibrary(nil)
	sc := bufio.NewScanner(r)
	first := true
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if first {
			l.base = line
			first = false
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) == 1 {
			l.AddClip(l.clipFromPath(fields[0]))
			continue
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty group name", n)
		}
		clips := make([]types.Clip, 0, len(fields)-1)
		for _, f := range fields[1:] {
			clips = append(clips, l.clipFromPath(f))
		}
		l.AddGroup(name, clips)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sound list: %w", err)
	}
	return l, nil
}

func (l *Library) clipFromPath(p string) types.Clip {
	p = strings.TrimSpace(p)
	full := p
	if l.base != "" {
		full = path.Join(l.base, p)
	}
	return types.Clip{Name: path.Base(p), Path: full}
}

// AddClip registers a single clip; an existing name is kept.
func (l *Library) AddClip(c types.Clip) {
	if c.Name == "" {
		return
	}
	if _, ok := l.clips[c.Name]; !ok {
		l.clips[c.Name] = c
	}
}

// AddGroup registers or replaces a group.
func (l *Library) AddGroup(name string, clips []types.Clip) {
	l.groups[name] = clips
}

// IsGroup 名稱是否為群組
func (l *Library) IsGroup(name string) bool {
	_, ok := l.groups[name]
	return ok
}

// Group returns the clips of a group, nil when absent.
func (l *Library) Group(name string) []types.Clip {
	return l.groups[name]
}

// ClipCount returns the size of a group, -1 when absent.
func (l *Library) ClipCount(name string) int {
	g, ok := l.groups[name]
	if !ok {
		return -1
	}
	return len(g)
}

// Clip looks name up as a clip first and then as a group, in which case a
// random member is returned.
func (l *Library) Clip(name string) (types.Clip, bool) {
	if c, ok := l.clips[name]; ok {
		return c, true
	}
	if g := l.groups[name]; len(g) > 0 {
		return g[rand.IntN(len(g))], true
	}
	return types.Clip{}, false
}

// Groups 所有群組名稱
func (l *Library) Groups() []string {
	out := make([]string, 0, len(l.groups))
	for name := range l.groups {
		out = append(out, name)
	}
	return out
}
