package config

import (
	"fmt"
	"os"
	"path"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	HttpAddr      string        `yaml:"http_addr" validate:"required"`
	DefaultBoard  string        `yaml:"default_board" validate:"required,ne=rules"`
	Boards        []BoardLink   `yaml:"boards" validate:"required,min=1,dive"`
	Moderators    []string      `yaml:"moderators"`
	GuestPrefix   string        `yaml:"guest_prefix" validate:"required"`
	IdLength      int           `yaml:"id_length" validate:"required,min=6,max=32"`
	Timezone      string        `yaml:"timezone"`
	IdentityTTL   time.Duration `yaml:"identity_ttl" validate:"required"`
	SecureCookies bool          `yaml:"secure_cookies"`
	LogLevel      string        `yaml:"log_level"`
	LogJSON       bool          `yaml:"log_json"`
	RulesFile     string        `yaml:"rules_file"`

	MaxUploadBytes        int64    `yaml:"max_upload_bytes" validate:"required,min=1"`
	AllowedImageMimeTypes []string `yaml:"allowed_image_mime_types" validate:"required,min=1"`
	SubjectMaxLen         int      `yaml:"subject_max_len" validate:"required,min=1"`
	CommentMaxLen         int      `yaml:"comment_max_len" validate:"required,min=1"`

	Storage Storage `yaml:"storage"`
	Upload  Upload  `yaml:"upload"`
}

// BoardLink is one entry of the navigation bar.
type BoardLink struct {
	Name  string `yaml:"name" validate:"required"`
	Title string `yaml:"title" validate:"required"`
}

type Storage struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory pg redis"`
	// Key names the document row in pg and prefixes the redis keys.
	Key string `yaml:"key"`
}

type Upload struct {
	Backend       string `yaml:"backend" validate:"omitempty,oneof=fs s3"`
	FsRoot        string `yaml:"fs_root"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type Private struct {
	JwtKey   string             `yaml:"jwt_key" validate:"required"`
	Pg       Pg                 `yaml:"pg"`
	RedisURL string             `yaml:"redis_url"`
	S3       S3                 `yaml:"s3"`
	Accounts map[string]Account `yaml:"accounts" validate:"dive"`
}

type Pg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
}

type S3 struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Account is a registered identity that a guest can connect to.
type Account struct {
	PasswordHash string `yaml:"password_hash" validate:"required"`
	AvatarURL    string `yaml:"avatar_url"`
}

func (s *Config) JwtKey() string {
	return s.Private.JwtKey
}

func (s *Config) IdentityTTL() time.Duration {
	return s.Public.IdentityTTL
}

// Location resolves the configured display timezone, UTC when unset or unknown.
func (p *Public) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (p *Public) applyDefaults() {
	if p.Storage.Backend == "" {
		p.Storage.Backend = "memory"
	}
	if p.Storage.Key == "" {
		p.Storage.Key = "ninechan"
	}
	if p.Upload.Backend == "" {
		p.Upload.Backend = "fs"
	}
	if p.Upload.FsRoot == "" {
		p.Upload.FsRoot = "media"
	}
	if p.Upload.PublicBaseURL == "" && p.Upload.Backend == "fs" {
		p.Upload.PublicBaseURL = "/media"
	}
}

func mustLoadPath(configPath string, output interface{}) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		panic("can't read config file: " + configPath)
	}

	if err := yaml.UnmarshalStrict(configFile, output); err != nil {
		panic(fmt.Sprintf("can't unmarshal config file %s: %v", configPath, err))
	}
}

func MustLoad(configFolder string) *Config {
	var public Public
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)
	public.applyDefaults()

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)

	cfg := &Config{Public: public, Private: private}
	if err := Validate(cfg); err != nil {
		panic(err.Error())
	}
	return cfg
}

// Validate checks struct tags and cross-field constraints.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	known := false
	for _, b := range cfg.Public.Boards {
		if b.Name == cfg.Public.DefaultBoard {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("invalid config: default_board %q is not listed in boards", cfg.Public.DefaultBoard)
	}

	switch cfg.Public.Storage.Backend {
	case "pg":
		if cfg.Private.Pg.Host == "" || cfg.Private.Pg.Dbname == "" {
			return fmt.Errorf("invalid config: pg storage requires pg.host and pg.dbname")
		}
	case "redis":
		if cfg.Private.RedisURL == "" {
			return fmt.Errorf("invalid config: redis storage requires redis_url")
		}
	}
	if cfg.Public.Upload.Backend == "s3" && (cfg.Private.S3.Bucket == "" || cfg.Public.Upload.PublicBaseURL == "") {
		return fmt.Errorf("invalid config: s3 upload requires s3.bucket and upload.public_base_url")
	}
	return nil
}
