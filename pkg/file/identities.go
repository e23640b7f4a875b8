package file

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DefaultIdentities is used when no identities file is configured.
var DefaultIdentities = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

type identitiesConfig struct {
	Identities []string `mapstructure:"identities"`
}

type picker interface {
	Intn(n int) int
}

// IdentityService hands out identity strings from a YAML file and reloads
// them when the file changes.
type IdentityService struct {
	viper      *viper.Viper
	identities []string
	mux        *sync.RWMutex
	picker     picker
	logger     *logrus.Logger
}

func NewIdentityService(file string, picker picker, logger *logrus.Logger) (*IdentityService, error) {
	is := &IdentityService{
		identities: DefaultIdentities,
		mux:        &sync.RWMutex{},
		picker:     picker,
		logger:     logger,
	}

	if file == "" {
		return is, nil
	}

	v := viper.New()
	v.SetConfigFile(file)
	err := v.ReadInConfig()
	if err != nil {
		return nil, errors.Wrap(err, "error reading in identities file")
	}
	is.viper = v

	err = is.loadIdentities()
	if err != nil {
		return nil, errors.Wrap(err, "error loading identities")
	}

	return is, nil
}

// Watch reloads the identities whenever the file changes. A file that fails
// validation leaves the previous identities in place.
func (is *IdentityService) Watch() {
	if is.viper == nil {
		return
	}

	is.viper.WatchConfig()
	is.viper.OnConfigChange(func(e fsnotify.Event) {
		is.logger.WithField("file", e.Name).Info("identities file changed")
		if err := is.loadIdentities(); err != nil {
			is.logger.WithError(err).Error("could not reload identities")
		}
	})
}

func (is *IdentityService) Random() string {
	is.mux.RLock()
	defer is.mux.RUnlock()

	return is.identities[is.picker.Intn(len(is.identities))]
}

func (is *IdentityService) Len() int {
	is.mux.RLock()
	defer is.mux.RUnlock()

	return len(is.identities)
}

func (is *IdentityService) loadIdentities() error {
	var cfg identitiesConfig
	err := is.viper.Unmarshal(&cfg)
	if err != nil {
		return errors.Wrap(err, "error on identities unmarshal")
	}

	identities, err := validateIdentities(cfg.Identities)
	if err != nil {
		return errors.Wrap(err, "identities file is invalid")
	}

	is.mux.Lock()
	is.identities = identities
	is.mux.Unlock()

	return nil
}

func validateIdentities(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	identities := make([]string, 0, len(raw))

	for i, identity := range raw {
		identity = strings.TrimSpace(identity)
		if identity == "" {
			return nil, errors.Errorf("empty identity (%d)", i)
		}
		if seen[identity] {
			continue
		}
		seen[identity] = true
		identities = append(identities, identity)
	}

	if len(identities) == 0 {
		return nil, errors.Errorf("there are no identities")
	}

	return identities, nil
}
