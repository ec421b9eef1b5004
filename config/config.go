// Package config holds the run configuration of the graph builder and the
// sample manifest format.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/mudesheng/cdbg/buckets"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/kmer"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CDBG"

// MaxBuckets bounds the bucket count; every bucket holds one spiller
// goroutine per pool and a file descriptor while it spills.
const MaxBuckets = 1 << 16

// Config holds the construction parameters. MinimizerLen, SpillThreshold and
// ColorCeiling have no default and must be set.
type Config struct {
	K            int `envconfig:"K" default:"31"`
	MinimizerLen int `envconfig:"MINIMIZER_LEN"`
	Buckets      int `envconfig:"BUCKETS" default:"256"`
	// SpillThreshold is the number of bytes a bucket keeps in memory before
	// it spills to disk.
	SpillThreshold int    `envconfig:"SPILL_THRESHOLD"`
	Workers        int    `envconfig:"WORKERS" default:"4"`
	ScanWorkers    int    `envconfig:"SCAN_WORKERS" default:"2"`
	QueueCapacity  int    `envconfig:"QUEUE_CAPACITY" default:"64"`
	BatchRecords   int    `envconfig:"BATCH_RECORDS" default:"4096"`
	ColorCeiling   int    `envconfig:"COLOR_CEILING"`
	MinAbundance   int    `envconfig:"MIN_ABUNDANCE" default:"1"`
	Hasher         string `envconfig:"HASHER" default:"mix"`
	// SpillRetries is the number of retries after a failed spill write.
	SpillRetries     int           `envconfig:"SPILL_RETRIES" default:"3"`
	SpillBackoff     time.Duration `envconfig:"SPILL_BACKOFF" default:"50ms"`
	TmpDir           string        `envconfig:"TMP_DIR"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL" default:"5s"`
}

// Load reads the optional env files (".env" when none is given and it
// exists) and then the CDBG_* environment.
func Load(envFiles ...string) (Config, error) {
	var cfg Config
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return cfg, errs.Wrap(errors.Wrap(err, "loading env files"), errs.KindConfiguration, "config.Load", "bad env file")
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, errs.Wrap(err, errs.KindConfiguration, "config.Load", "bad environment")
	}
	return cfg, nil
}

// Validate checks every parameter before any run state exists.
func (c Config) Validate() error {
	const op = "config.Validate"
	switch {
	case c.K < 1 || c.K > kmer.MaxK:
		return errs.Configuration(op, "k=%d must be in [1, %d]", c.K, kmer.MaxK)
	case c.MinimizerLen < 1 || c.MinimizerLen > c.K:
		return errs.Configuration(op, "minimizer length %d must be in [1, k=%d]", c.MinimizerLen, c.K)
	case c.Buckets < 1 || c.Buckets > MaxBuckets:
		return errs.Configuration(op, "bucket count %d must be in [1, %d]", c.Buckets, MaxBuckets)
	case c.SpillThreshold < 1:
		return errs.Configuration(op, "spill threshold %d must be positive", c.SpillThreshold)
	case c.Workers < 1:
		return errs.Configuration(op, "workers %d must be positive", c.Workers)
	case c.ScanWorkers < 1:
		return errs.Configuration(op, "scan workers %d must be positive", c.ScanWorkers)
	case c.QueueCapacity < 1:
		return errs.Configuration(op, "queue capacity %d must be positive", c.QueueCapacity)
	case c.BatchRecords < 1:
		return errs.Configuration(op, "batch records %d must be positive", c.BatchRecords)
	case c.ColorCeiling < 1:
		return errs.Configuration(op, "color ceiling %d must be positive", c.ColorCeiling)
	case c.MinAbundance < 1:
		return errs.Configuration(op, "min abundance %d must be positive", c.MinAbundance)
	case c.SpillRetries < 0:
		return errs.Configuration(op, "spill retries %d must not be negative", c.SpillRetries)
	}
	if _, err := kmer.NewHasher(c.Hasher); err != nil {
		return err
	}
	return nil
}

// RetryPolicy is the spill retry policy the configuration describes.
func (c Config) RetryPolicy() buckets.RetryPolicy {
	p := buckets.DefaultRetryPolicy()
	p.MaxAttempts = c.SpillRetries + 1
	if c.SpillBackoff > 0 {
		p.InitialDelay = c.SpillBackoff
		if p.MaxDelay < p.InitialDelay {
			p.MaxDelay = p.InitialDelay
		}
	}
	return p
}
