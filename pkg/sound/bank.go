// ABOUTME: Registry of decoded sound assets
// ABOUTME: Decodes files once, converts to canonical PCM and assigns sequential IDs
package sound

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/wav"
)

// ErrUnknownSound is returned when no asset matches a name or ID
var ErrUnknownSound = errors.New("unknown sound")

// Asset is a decoded sound in canonical format
type Asset struct {
	ID       int
	Name     string
	Category audio.Category
	PCM      []byte
	Info     map[string]string
	Source   string
	Silent   bool // substituted after a failed load
}

// DurationMs returns the asset length in milliseconds
func (a *Asset) DurationMs() int {
	return int(audio.Canonical.Duration(len(a.PCM)) * 1000)
}

// Bank holds assets by name and ID
type Bank struct {
	opts       wav.Options
	substitute bool
	log        zerolog.Logger

	mu     sync.RWMutex
	byName map[string]*Asset
	byID   []*Asset
}

// BankOption configures a Bank
type BankOption func(*Bank)

// WithWAVOptions sets the sample width conversions used for WAV files
func WithWAVOptions(o wav.Options) BankOption {
	return func(b *Bank) { b.opts = o }
}

// WithSilentSubstitutes registers an empty asset in place of any file that
// fails to load, so lookups by name still succeed
func WithSilentSubstitutes(on bool) BankOption {
	return func(b *Bank) { b.substitute = on }
}

// WithBankLogger sets the logger
func WithBankLogger(l zerolog.Logger) BankOption {
	return func(b *Bank) { b.log = l.With().Str("c", "bank").Logger() }
}

// NewBank creates an empty bank
func NewBank(opts ...BankOption) *Bank {
	b := &Bank{
		opts:   wav.DefaultOptions(),
		log:    log.Logger.With().Str("c", "bank").Logger(),
		byName: make(map[string]*Asset),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Register adds canonical PCM under name. Registering an existing name
// replaces its data and keeps its ID.
func (b *Bank) Register(name string, category audio.Category, pcm []byte) (*Asset, error) {
	return b.register(&Asset{Name: name, Category: category, PCM: pcm})
}

// RegisterFormat converts 16-bit PCM in format to canonical and registers it
func (b *Bank) RegisterFormat(name string, category audio.Category, pcm []byte, format audio.Format) (*Asset, error) {
	canon, err := resample.ToCanonical(pcm, format)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", name, err)
	}
	return b.register(&Asset{Name: name, Category: category, PCM: canon})
}

func (b *Bank) register(a *Asset) (*Asset, error) {
	if a.Name == "" {
		return nil, errors.New("asset name is empty")
	}
	if !a.Category.Valid() {
		return nil, fmt.Errorf("%w: %v", audio.ErrInvalidCategory, a.Category)
	}
	block := audio.Canonical.BlockAlign()
	a.PCM = a.PCM[:len(a.PCM)/block*block]

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.byName[a.Name]; ok {
		a.ID = old.ID
		b.byID[a.ID] = a
	} else {
		a.ID = len(b.byID)
		b.byID = append(b.byID, a)
	}
	b.byName[a.Name] = a
	return a, nil
}

// Load decodes the file at path and registers it under name
func (b *Bank) Load(name string, category audio.Category, path string) (*Asset, error) {
	a, err := b.decodeFile(path)
	if err != nil {
		b.log.Warn().Err(err).Str("name", name).Str("path", path).Msg("asset load failed")
		if !b.substitute {
			return nil, err
		}
		a = &Asset{Silent: true}
	}
	a.Name = name
	a.Category = category
	a.Source = path
	return b.register(a)
}

func (b *Bank) decodeFile(path string) (*Asset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".wav" && ext != ".wave" {
		pcm, format, err := decode.File(path, b.opts)
		if err != nil {
			return nil, err
		}
		canon, err := resample.ToCanonical(pcm, format)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", filepath.Base(path), err)
		}
		return &Asset{PCM: canon}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset: %w", err)
	}
	defer f.Close()

	wr, err := wav.NewReader(f, b.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	pcm, err := wr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	canon, err := resample.ToCanonical(pcm, wr.Format())
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", filepath.Base(path), err)
	}

	info, err := wr.Info()
	if err != nil {
		b.log.Debug().Err(err).Str("path", path).Msg("ignoring unreadable INFO metadata")
		info = nil
	}
	return &Asset{PCM: canon, Info: info}, nil
}

// LoadDir loads every supported file under dir. Files in a subdirectory named
// after a category ("music", "effects", ...) get that category; everything
// else is an effect. Assets are named by file name without extension.
// Failed files are skipped (or substituted) and reported in the returned error.
func (b *Bank) LoadDir(dir string) (int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && decode.Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	var errs []error
	loaded := 0
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := b.Load(name, categoryFor(dir, path), path); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}

	b.log.Info().Str("dir", dir).Int("loaded", loaded).Int("failed", len(errs)).Msg("assets loaded")
	return loaded, errors.Join(errs...)
}

func categoryFor(root, path string) audio.Category {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return audio.Effect
	}
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	if c, err := audio.ParseCategory(first); err == nil {
		return c
	}
	return audio.Effect
}

// ByName returns the asset registered under name
func (b *Bank) ByName(name string) (*Asset, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.byName[name]
	return a, ok
}

// ByID returns the asset with the given sequential ID
func (b *Bank) ByID(id int) (*Asset, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if id < 0 || id >= len(b.byID) {
		return nil, false
	}
	return b.byID[id], true
}

// Len returns the number of registered assets
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Assets returns all assets in ID order
func (b *Bank) Assets() []*Asset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Asset(nil), b.byID...)
}
