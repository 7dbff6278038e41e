package state

import (
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/buttond/hardware/input"
	"github.com/temoto/buttond/helpers"
	"github.com/temoto/buttond/internal/button"
	"github.com/temoto/buttond/log2"
	tele_config "github.com/temoto/buttond/tele/config"
)

const (
	DefaultInput = "/dev/input/event0"
	DefaultShort = 1000 * time.Millisecond
	DefaultLong  = 5000 * time.Millisecond
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	DebounceMs  int  `hcl:"debounce_ms"`
	StopAfterMs int  `hcl:"stop_after_ms"`
	Verbose     int  `hcl:"verbose"`
	TestMode    bool `hcl:"test_mode"`

	Inputs []InputConfig `hcl:"input"`
	Keys   []KeyConfig   `hcl:"key"`

	Tele    tele_config.Config        `hcl:"tele"`
	Metrics tele_config.MetricsConfig `hcl:"metrics"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type InputConfig struct {
	Path  string `hcl:"path,key"`
	Watch bool   `hcl:"watch"`
}

// KeyConfig blocks with same key are merged.
type KeyConfig struct {
	Name  string         `hcl:"name,key"`
	Short []ActionConfig `hcl:"short"`
	Long  []ActionConfig `hcl:"long"`
}

type ActionConfig struct {
	Ms      int    `hcl:"ms"`
	Command string `hcl:"command"`
	Exit    bool   `hcl:"exit"`
}

func (c *Config) Debounce() time.Duration {
	return helpers.IntMillisecondDefault(c.DebounceMs, button.DefaultDebounce)
}

// StopAfter zero means no stop timer.
func (c *Config) StopAfter() time.Duration {
	return time.Duration(c.StopAfterMs) * time.Millisecond
}

func (c *Config) LogLevel() log2.Level { return log2.Verbosity(c.Verbose) }

// Build validates bindings and sources, reports all problems at once.
func (c *Config) Build() ([]*button.Key, []input.SourceConfig, error) {
	errs := make([]error, 0, 8)
	if c.DebounceMs < 0 {
		errs = append(errs, errors.NotValidf("debounce_ms=%d", c.DebounceMs))
	}
	if c.StopAfterMs < 0 {
		errs = append(errs, errors.NotValidf("stop_after_ms=%d", c.StopAfterMs))
	}

	type group struct {
		name    string
		actions []button.Action
	}
	var order []uint16
	groups := make(map[uint16]*group, len(c.Keys))
	for _, kc := range c.Keys {
		code, err := input.ParseKey(kc.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if code == button.StopCode {
			errs = append(errs, errors.NotValidf("key %q code 0 is reserved", kc.Name))
			continue
		}
		g := groups[code]
		if g == nil {
			g = &group{name: input.KeyName(code)}
			if g.name == "unknown" {
				g.name = kc.Name
			}
			groups[code] = g
			order = append(order, code)
		}
		for _, ac := range kc.Short {
			g.actions = append(g.actions, ac.action(button.Short))
		}
		for _, ac := range kc.Long {
			g.actions = append(g.actions, ac.action(button.Long))
		}
	}

	keys := make([]*button.Key, 0, len(order))
	for _, code := range order {
		g := groups[code]
		button.SortActions(g.actions)
		if err := button.ValidateActions(g.actions); err != nil {
			errs = append(errs, errors.Annotatef(err, "key %s", g.name))
			continue
		}
		keys = append(keys, button.NewKey(code, g.name, g.actions))
	}
	if len(c.Keys) == 0 && c.LogLevel() < log2.LTrace {
		// empty table is useful with trace log to discover key codes
		errs = append(errs, errors.NotValidf("no key bindings (use -vv to print key events)"))
	}

	sources := make([]input.SourceConfig, 0, len(c.Inputs)+1)
	seen := make(map[string]struct{}, len(c.Inputs))
	for _, ic := range c.Inputs {
		if ic.Path == "" {
			errs = append(errs, errors.NotValidf("input with empty path"))
			continue
		}
		norm := filepath.Clean(ic.Path)
		if _, ok := seen[norm]; ok {
			errs = append(errs, errors.AlreadyExistsf("input %s", ic.Path))
			continue
		}
		seen[norm] = struct{}{}
		sources = append(sources, input.SourceConfig{Path: ic.Path, Watch: ic.Watch})
	}
	if len(sources) == 0 && len(c.Inputs) == 0 {
		sources = append(sources, input.SourceConfig{Path: DefaultInput})
	}

	if err := helpers.FoldErrors(errs); err != nil {
		return nil, nil, err
	}
	return keys, sources, nil
}

func (ac ActionConfig) action(kind button.Kind) button.Action {
	def := DefaultShort
	if kind == button.Long {
		def = DefaultLong
	}
	return button.Action{
		Kind:      kind,
		Threshold: helpers.IntMillisecondDefault(ac.Ms, def),
		Command:   ac.Command,
		ExitAfter: ac.Exit,
	}
}

func NewConfig() *Config {
	return &Config{includeSeen: make(map[string]struct{})}
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.AlreadyExistsf("config source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads names in order into one Config, later values override.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	c := NewConfig()
	if err := c.ReadFiles(log, fs, names...); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) ReadFiles(log *log2.Log, fs FullReader, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	names = append([]string(nil), names...)
	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return err
		}
		names[0] = name
	}
	if c.includeSeen == nil {
		c.includeSeen = make(map[string]struct{})
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return helpers.FoldErrors(errs)
}
