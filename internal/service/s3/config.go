package s3

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Endpoint        string `mapstructure:"S3_ENDPOINT"`
	Region          string `mapstructure:"S3_REGION"`
	AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	Bucket          string `mapstructure:"S3_BUCKET"`
	UsePathStyle    bool   `mapstructure:"S3_USE_PATH_STYLE"`
}

// NewConfig читает настройки S3 из файла либо из переменных окружения.
func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read s3 config: %w", err)
			}
		}
	}

	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_PATH_STYLE", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal s3 config: %w", err)
	}

	// Viper не подхватывает env при пустом конфиг-файле, читаем напрямую
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("S3_ENDPOINT")
	}
	if cfg.AccessKeyID == "" {
		cfg.AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	}
	if cfg.SecretAccessKey == "" {
		cfg.SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = os.Getenv("S3_BUCKET")
	}

	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("incomplete s3 configuration: endpoint, credentials and bucket are required")
	}

	return &cfg, nil
}
