// Package platform reads the host platform's deployment settings to find
// where the dashboard expects artifacts to be delivered.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/siftworks/siftx/pkg/sink"
	filesink "github.com/siftworks/siftx/pkg/sink/file"
	s3sink "github.com/siftworks/siftx/pkg/sink/s3"
)

// Settings file names, found one directory above the platform root.
const (
	EnvJSONFilename  = "lms.env.json"
	AuthJSONFilename = "lms.auth.json"
)

// SettingsError indicates the platform settings are missing required
// storage credentials or bucket configuration.
type SettingsError struct {
	Message string
}

func (e *SettingsError) Error() string {
	return e.Message
}

// StorageSettings is the delivery target extracted from the platform's
// env and auth JSON files.
type StorageSettings struct {
	UseS3           bool
	Bucket          string
	RootPath        string
	AccessKeyID     string
	SecretAccessKey string
}

type envTokens struct {
	GradesDownload struct {
		StorageType string `json:"STORAGE_TYPE"`
		Bucket      string `json:"BUCKET"`
		RootPath    string `json:"ROOT_PATH"`
	} `json:"GRADES_DOWNLOAD"`
}

type authTokens struct {
	AWSAccessKeyID     string `json:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `json:"AWS_SECRET_ACCESS_KEY"`
}

// LoadStorageSettings reads lms.env.json and lms.auth.json adjacent to
// the platform root and validates the storage credentials.
func LoadStorageSettings(platformRoot string) (*StorageSettings, error) {
	parent := filepath.Dir(filepath.Clean(platformRoot))

	var env envTokens
	if err := readJSON(filepath.Join(parent, EnvJSONFilename), &env); err != nil {
		return nil, err
	}
	var auth authTokens
	if err := readJSON(filepath.Join(parent, AuthJSONFilename), &auth); err != nil {
		return nil, err
	}

	s := &StorageSettings{
		UseS3:           env.GradesDownload.StorageType == "S3",
		Bucket:          env.GradesDownload.Bucket,
		RootPath:        env.GradesDownload.RootPath,
		AccessKeyID:     auth.AWSAccessKeyID,
		SecretAccessKey: auth.AWSSecretAccessKey,
	}

	if s.UseS3 {
		if s.AccessKeyID == "" {
			return nil, &SettingsError{Message: "no AWS_ACCESS_KEY_ID"}
		}
		if s.SecretAccessKey == "" {
			return nil, &SettingsError{Message: "no AWS_SECRET_ACCESS_KEY"}
		}
		if s.Bucket == "" {
			return nil, &SettingsError{Message: "no GRADES_DOWNLOAD bucket"}
		}
	}
	return s, nil
}

// NewSink constructs the storage sink the settings describe: S3 when the
// platform stores grades in S3, local filesystem otherwise.
func (s *StorageSettings) NewSink(ctx context.Context) (sink.Sink, error) {
	if s.UseS3 {
		return s3sink.New(ctx, s3sink.Config{
			Bucket:          s.Bucket,
			RootPath:        s.RootPath,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
		})
	}
	return filesink.New(filesink.Config{RootDir: s.RootPath})
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read platform settings: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
