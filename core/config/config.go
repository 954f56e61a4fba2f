package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	gossh "golang.org/x/crypto/ssh"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	LogsDirName       = "session_logs"
	PrivateKeyName    = "private_key"
)

// ErrNoConfigDir is returned by operations that need a configuration
// directory when the built-in defaults are in use.
var ErrNoConfigDir = errors.New("no configuration directory, run init or pass --config")

// ErrNoSSHUsers is returned when serving is requested but nobody may log in.
var ErrNoSSHUsers = errors.New("no ssh users configured, add one to ssh.users")

type Configuration struct {
	configFs afero.Fs

	Prompt              Prompt   `json:"prompt"`
	Farewell            []string `json:"farewell"`
	InvalidInputMessage string   `json:"invalid_input_message" validate:"required"`
	EventLog            string   `json:"event_log"`
	AppLog              string   `json:"app_log" validate:"required"`

	SSH SSH `json:"ssh"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

type Prompt struct {
	TimeFormat   string `json:"time_format" validate:"required"`
	Color        string `json:"color" validate:"oneof=always auto never"`
	UserFallback string `json:"user_fallback" validate:"required"`
}

type SSH struct {
	BindAddress          string `json:"bind_address"`
	Port                 int    `json:"port" validate:"gte=0,lte=65535"`
	Users                []User `json:"users" validate:"unique=Username,dive"`
	OutputBytesPerSecond int64  `json:"output_bytes_per_second" validate:"gte=0"`
	RecordSessions       bool   `json:"record_sessions"`
}

// Addr is the host:port the SSH server listens on.
func (s *SSH) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

type User struct {
	Username  string   `json:"username" validate:"required"`
	Passwords []string `json:"passwords" validate:"min=1,unique,dive,required"`
}

func (c *Configuration) fs() (afero.Fs, error) {
	if c.configFs == nil {
		return nil, ErrNoConfigDir
	}
	return c.configFs, nil
}

// HasDir reports whether the configuration was loaded from a directory.
func (c *Configuration) HasDir() bool {
	return c.configFs != nil
}

// CreateSessionRecording creates a session recording with the given name.
func (c *Configuration) CreateSessionRecording(name string) (afero.File, error) {
	fs, err := c.fs()
	if err != nil {
		return nil, err
	}
	return fs.Create(path.Join(LogsDirName, name))
}

// PrivateKeyPem returns the bytes of the private key.
func (c *Configuration) PrivateKeyPem() ([]byte, error) {
	fs, err := c.fs()
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(fs, PrivateKeyName)
}

// HostSigner parses the SSH host key.
func (c *Configuration) HostSigner() (gossh.Signer, error) {
	keyPem, err := c.PrivateKeyPem()
	if err != nil {
		return nil, err
	}
	signer, err := gossh.ParsePrivateKey(keyPem)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", PrivateKeyName, err)
	}
	return signer, nil
}

// OpenEventLog opens the session event log in an append only state. It
// returns (nil, nil) if the event log is disabled.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	if c.EventLog == "" || !c.HasDir() {
		return nil, nil
	}
	return c.configFs.OpenFile(c.EventLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadEventLog opens the session event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	fs, err := c.fs()
	if err != nil {
		return nil, err
	}
	if c.EventLog == "" {
		return nil, errors.New("event_log is disabled")
	}
	return fs.Open(c.EventLog)
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	fs, err := c.fs()
	if err != nil {
		return nil, err
	}
	return fs.OpenFile(c.AppLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// CheckServable returns ErrNoSSHUsers if no user could log in over SSH.
func (c *Configuration) CheckServable() error {
	if len(c.SSH.Users) == 0 {
		return ErrNoSSHUsers
	}
	return nil
}

// GetPasswords returns allowable passwords for the given username.
func (c *Configuration) GetPasswords(username string) []string {
	var out []string
	for _, v := range c.SSH.Users {
		if v.Username == username {
			out = append(out, v.Passwords...)
		}
	}
	return out
}

// Default returns the built-in configuration. It isn't backed by a directory.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
