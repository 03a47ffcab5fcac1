// Package catalog holds the fixed feedback wording for the automated and
// human channels.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/latestcomment/round-feedback/internal/models"
)

// Size is the number of options in each list.
const Size = 3

var (
	ErrBadOption = errors.New("option out of range")
	ErrNoWording = errors.New("channel has no feedback wording")
)

//go:embed feedback.yaml
var embedded []byte

type Catalog struct {
	Automated []string `yaml:"automated"`
	Human     []string `yaml:"human"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog Catalog
)

// Default returns the catalog compiled into the binary.
func Default() Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embedded)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded feedback.yaml: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := validateList("automated", c.Automated); err != nil {
		return Catalog{}, err
	}
	if err := validateList("human", c.Human); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func validateList(name string, list []string) error {
	if len(list) != Size {
		return fmt.Errorf("%s list has %d entries, want %d", name, len(list), Size)
	}
	for i, s := range list {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s option %d is empty", name, i+1)
		}
	}
	return nil
}

// ValidOption reports whether option is a 1-based catalog index.
func ValidOption(option int) bool {
	return option >= 1 && option <= Size
}

// Options returns the wording list used for ch.
func (c Catalog) Options(ch models.Channel) ([]string, error) {
	switch ch {
	case models.ChannelAutomated:
		return c.Automated, nil
	case models.ChannelHuman:
		return c.Human, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoWording, ch)
}

// Text returns the wording for option (1-based) on channel ch.
func (c Catalog) Text(ch models.Channel, option int) (string, error) {
	opts, err := c.Options(ch)
	if err != nil {
		return "", err
	}
	if !ValidOption(option) {
		return "", fmt.Errorf("%w: %d", ErrBadOption, option)
	}
	return opts[option-1], nil
}
