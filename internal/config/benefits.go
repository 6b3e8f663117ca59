package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Benefit describes one perk granted by a membership type.
type Benefit struct {
	Code        string `mapstructure:"code" json:"code"`
	Label       string `mapstructure:"label" json:"label"`
	GuestPasses int    `mapstructure:"guestPasses" json:"guest_passes"`
}

// BenefitsConfig maps membership type names to their benefit sets.
type BenefitsConfig struct {
	Types map[string][]Benefit `mapstructure:"types"`
}

func DefaultBenefitsConfig() BenefitsConfig {
	return BenefitsConfig{
		Types: map[string][]Benefit{
			"family": {
				{Code: "pool_access", Label: "Pool access", GuestPasses: 0},
				{Code: "guest_passes", Label: "Included guest passes", GuestPasses: 4},
				{Code: "swim_lessons", Label: "Group swim lessons"},
			},
			"individual": {
				{Code: "pool_access", Label: "Pool access"},
				{Code: "guest_passes", Label: "Included guest passes", GuestPasses: 2},
			},
			"senior": {
				{Code: "pool_access", Label: "Pool access"},
				{Code: "lap_hours", Label: "Early lap swim hours"},
			},
		},
	}
}

// BenefitProvider abstracts the benefit lookup so alternative sources can be
// injected (the static YAML holder is the default).
type BenefitProvider interface {
	BenefitsFor(typeName string) []Benefit
}

// BenefitsHolder serves the benefit table from a hot-reloadable YAML file.
type BenefitsHolder struct {
	current atomic.Value // holds BenefitsConfig
}

func NewBenefitsHolder() (*BenefitsHolder, error) {
	v := viper.New()

	v.SetConfigName("benefits")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/clubhouse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLUBHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultBenefitsConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no file: defaults stay in effect
	} else {
		if err := v.UnmarshalKey("benefits", &cfg); err != nil {
			return nil, err
		}
		if err := validateBenefitsConfig(cfg); err != nil {
			return nil, err
		}
	}

	holder := &BenefitsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BenefitsConfig
		if err := v.UnmarshalKey("benefits", &updated); err != nil {
			log.Printf("[benefits-config] reload failed: %v", err)
			return
		}
		if err := validateBenefitsConfig(updated); err != nil {
			log.Printf("[benefits-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[benefits-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BenefitsHolder) Get() BenefitsConfig {
	return h.current.Load().(BenefitsConfig)
}

func (h *BenefitsHolder) BenefitsFor(typeName string) []Benefit {
	return h.Get().Types[strings.ToLower(strings.TrimSpace(typeName))]
}

func validateBenefitsConfig(cfg BenefitsConfig) error {
	if len(cfg.Types) == 0 {
		return errors.New("benefits.types cannot be empty")
	}
	for name, benefits := range cfg.Types {
		if len(benefits) == 0 {
			return errors.New("benefits.types." + name + " cannot be empty")
		}
	}
	return nil
}
