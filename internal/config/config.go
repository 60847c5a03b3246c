// Package config loads repository settings from <repo>/.splice/config.yaml
// and SPLICE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/store"
)

const (
	fileName  = "config"
	fileType  = "yaml"
	envPrefix = "SPLICE"
)

// Settings mirrors the config file.
type Settings struct {
	User   UserSettings   `mapstructure:"user" yaml:"user"`
	Merge  MergeSettings  `mapstructure:"merge" yaml:"merge"`
	Rebase RebaseSettings `mapstructure:"rebase" yaml:"rebase"`
	Store  StoreSettings  `mapstructure:"store" yaml:"store"`
}

type UserSettings struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Email string `mapstructure:"email" yaml:"email"`
	// Timestamp, if set, is an RFC3339 time stamped on every new commit
	// and operation instead of the current time.
	Timestamp string `mapstructure:"timestamp" yaml:"timestamp,omitempty"`
}

type MergeSettings struct {
	SameChange string `mapstructure:"same-change" yaml:"same-change"`
}

type RebaseSettings struct {
	Empty                    string `mapstructure:"empty" yaml:"empty"`
	SimplifyAncestorMerge    bool   `mapstructure:"simplify-ancestor-merge" yaml:"simplify-ancestor-merge"`
	DeleteAbandonedBookmarks bool   `mapstructure:"delete-abandoned-bookmarks" yaml:"delete-abandoned-bookmarks"`
}

type StoreSettings struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Merge:  MergeSettings{SameChange: merge.SameChangeAccept.String()},
		Rebase: RebaseSettings{Empty: repo.EmptyKeep.String()},
		Store:  StoreSettings{Concurrency: backend.DefaultConcurrency},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("user.name", d.User.Name)
	v.SetDefault("user.email", d.User.Email)
	v.SetDefault("user.timestamp", d.User.Timestamp)
	v.SetDefault("merge.same-change", d.Merge.SameChange)
	v.SetDefault("rebase.empty", d.Rebase.Empty)
	v.SetDefault("rebase.simplify-ancestor-merge", d.Rebase.SimplifyAncestorMerge)
	v.SetDefault("rebase.delete-abandoned-bookmarks", d.Rebase.DeleteAbandonedBookmarks)
	v.SetDefault("store.concurrency", d.Store.Concurrency)
}

// Path returns the config file location for the repository at dir.
func Path(dir string) string {
	return filepath.Join(dir, repo.DirName, fileName+"."+fileType)
}

// Load reads the settings for the repository at dir. A missing config file
// is not an error. Environment variables such as SPLICE_REBASE_EMPTY
// override the file.
func Load(dir string) (*Settings, error) {
	v := viper.New()
	v.SetConfigName(fileName)
	v.SetConfigType(fileType)
	v.AddConfigPath(filepath.Join(dir, repo.DirName))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteDefault writes s to the config file of the repository at dir
// unless one already exists.
func WriteDefault(dir string, s Settings) error {
	path := Path(dir)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks every enumerated value.
func (s *Settings) Validate() error {
	if _, err := s.MergeOptions(); err != nil {
		return err
	}
	if _, err := s.RebaseOptions(); err != nil {
		return err
	}
	if _, err := s.now(); err != nil {
		return err
	}
	if s.Store.Concurrency < 0 {
		return fmt.Errorf("store.concurrency must not be negative, got %d", s.Store.Concurrency)
	}
	return nil
}

// MergeOptions converts the merge section.
func (s *Settings) MergeOptions() (store.MergeOptions, error) {
	sc, err := merge.ParseSameChange(s.Merge.SameChange)
	if err != nil {
		return store.MergeOptions{}, fmt.Errorf("merge.same-change: %w", err)
	}
	return store.MergeOptions{SameChange: sc}, nil
}

// RebaseOptions converts the rebase section.
func (s *Settings) RebaseOptions() (repo.RebaseOptions, error) {
	empty, err := repo.ParseEmptyBehavior(s.Rebase.Empty)
	if err != nil {
		return repo.RebaseOptions{}, fmt.Errorf("rebase.empty: %w", err)
	}
	return repo.RebaseOptions{
		Empty:                 empty,
		RewriteRefs:           repo.RewriteRefsOptions{DeleteAbandonedBookmarks: s.Rebase.DeleteAbandonedBookmarks},
		SimplifyAncestorMerge: s.Rebase.SimplifyAncestorMerge,
	}, nil
}

func (s *Settings) now() (func() time.Time, error) {
	if s.User.Timestamp == "" {
		return time.Now, nil
	}
	ts, err := time.Parse(time.RFC3339, s.User.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("user.timestamp: %w", err)
	}
	return func() time.Time { return ts }, nil
}

// RepoOptions converts the settings into options for opening a repository.
func (s *Settings) RepoOptions(log *zap.Logger) (repo.Options, error) {
	mergeOpts, err := s.MergeOptions()
	if err != nil {
		return repo.Options{}, err
	}
	now, err := s.now()
	if err != nil {
		return repo.Options{}, err
	}
	return repo.Options{
		Logger:       log,
		UserName:     s.User.Name,
		UserEmail:    s.User.Email,
		Now:          now,
		Concurrency:  s.Store.Concurrency,
		MergeOptions: mergeOpts,
	}, nil
}
