package util

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator"

	"github.com/OFFIS-RIT/netunion/pkg/graph"
	"github.com/OFFIS-RIT/netunion/pkg/loader"
)

const (
	SourceLocal = "local"
	SourceS3    = "s3"
)

// RunConfig holds the policy parameters of one selection run.
type RunConfig struct {
	// Source is where network files are discovered, "local" or "s3".
	Source      string `json:"source" validate:"required,oneof=local s3"`
	Root        string `json:"root" validate:"required"`
	Bucket      string `json:"bucket,omitempty"`
	DirPattern  string `json:"dir_pattern" validate:"required"`
	FilePattern string `json:"file_pattern" validate:"required"`

	Dimension     string `json:"dimension" validate:"required,oneof=nodes edges"`
	SeedCriterion string `json:"seed_criterion" validate:"required,oneof=secondary main size-main"`

	// Output is a local directory, or a key prefix in the artifact bucket
	// for queued runs.
	Output string `json:"output" validate:"required"`

	Parallelism  int `json:"parallelism" validate:"min=0"`
	LoadParallel int `json:"load_parallel" validate:"min=1"`
}

// ErrInvalidConfig is wrapped by every RunConfig validation failure.
var ErrInvalidConfig = errors.New("invalid run config")

var validate = validator.New()

// LoadRunConfig reads a RunConfig from NETUNION_* environment variables.
// Unset variables take the defaults.
func LoadRunConfig() RunConfig {
	return RunConfig{
		Source:        GetEnvString("NETUNION_SOURCE", SourceLocal),
		Root:          GetEnvString("NETUNION_ROOT", "."),
		Bucket:        GetEnvString("NETUNION_BUCKET", ""),
		DirPattern:    GetEnvString("NETUNION_DIR_PATTERN", loader.DefaultDirPattern),
		FilePattern:   GetEnvString("NETUNION_FILE_PATTERN", loader.DefaultFilePattern),
		Dimension:     GetEnvString("NETUNION_DIMENSION", string(graph.DimensionNodes)),
		SeedCriterion: GetEnvString("NETUNION_SEED_CRITERION", string(graph.SeedSecondary)),
		Output:        GetEnvString("NETUNION_OUTPUT", "."),
		Parallelism:   GetEnvInt("NETUNION_PARALLELISM", 0),
		LoadParallel:  GetEnvInt("NETUNION_LOAD_PARALLEL", 8),
	}
}

// Validate checks the configuration and returns one error naming every
// invalid field.
func (c RunConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Source == SourceS3 && c.Bucket == "" {
			return fmt.Errorf("%w: bucket is required for the s3 source", ErrInvalidConfig)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, ", "))
}
