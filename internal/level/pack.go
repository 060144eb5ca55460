package level

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/bounce/internal/audio"
	"github.com/ChuLiYu/bounce/internal/coroutine"
	"github.com/ChuLiYu/bounce/internal/event"
	"github.com/ChuLiYu/bounce/pkg/types"
)

// ErrInvalidPack 關卡包內容不合法
var ErrInvalidPack = errors.New("invalid level pack")

// Pack is the on-disk description of the level sequence and its audio.
type Pack struct {
	Levels      []LevelSpec             `yaml:"levels" validate:"required,min=1,unique=ID,dive"`
	AudioGroups map[string][]types.Clip `yaml:"audio_groups" validate:"omitempty,dive,dive"`
	// SoundList is an optional sound effects list file, relative to the
	// pack. Its groups are merged under AudioGroups.
	SoundList string `yaml:"sound_list,omitempty"`

	dir string
}

// LevelSpec 單一關卡
type LevelSpec struct {
	ID     int         `yaml:"id" validate:"required,min=1"`
	Name   string      `yaml:"name"`
	Shapes []ShapeSpec `yaml:"shapes" validate:"required,min=1,unique=ID,dive"`
}

// ShapeSpec 單一形狀
type ShapeSpec struct {
	ID   string     `yaml:"id" validate:"required"`
	Kind ShapeKind  `yaml:"kind" validate:"required,oneof=consumable non_consumable"`
	Pos  types.Vec2 `yaml:"pos"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadPack reads and validates a pack file.
func LoadPack(path string) (*Pack, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read level pack: %w", err)
	}
	p, err := ParsePack(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// ParsePack decodes and validates a pack. Unknown fields are rejected.
func ParsePack(r io.Reader) (*Pack, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Pack
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the struct tags and that every level has a consumable shape.
func (p *Pack) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}
	for _, l := range p.Levels {
		n := 0
		for _, s := range l.Shapes {
			if s.Kind == Consumable {
				n++
			}
		}
		if n == 0 {
			return fmt.Errorf("%w: level %d has no consumable shape", ErrInvalidPack, l.ID)
		}
	}
	return nil
}

// Build creates one Level per spec. Shapes get no view.
func (p *Pack) Build(d *coroutine.Dispatcher, signals *event.Signals, log zerolog.Logger) []*Level {
	levels := make([]*Level, 0, len(p.Levels))
	for _, ls := range p.Levels {
		shapes := make([]*Shape, 0, len(ls.Shapes))
		for _, ss := range ls.Shapes {
			shapes = append(shapes, NewShape(ss.ID, ss.Kind, ss.Pos, nil))
		}
		levels = append(levels, New(ls.ID, ls.Name, shapes, d, signals, log))
	}
	return levels
}

// Library builds the audio library from the sound list, if any, and the
// inline groups. Inline groups win on name clashes.
func (p *Pack) Library() (*audio.Library, error) {
	lib := audio.NewLibrary(nil)
	if p.SoundList != "" {
		path := p.SoundList
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.dir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sound list: %w", err)
		}
		defer f.Close()
		if lib, err = audio.ParseList(f); err != nil {
			return nil, err
		}
	}
	for name, clips := range p.AudioGroups {
		lib.AddGroup(name, clips)
	}
	return lib, nil
}
