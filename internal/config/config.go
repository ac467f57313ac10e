// Package config defines the pipeline configuration file and its defaults.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/denoise"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/extract"
	pio "github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/io"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/roi"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/scrub"
)

// Config is the full pipeline configuration, normally loaded from a YAML
// file. Zero values fall back to Default() through Load.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Space   SpaceConfig   `yaml:"space"`
	Preproc PreprocConfig `yaml:"preproc"`
	Denoise DenoiseConfig `yaml:"denoise"`
	Filter  FilterConfig  `yaml:"filter"`
	Scrub   ScrubConfig   `yaml:"scrub"`
	Extract ExtractConfig `yaml:"extract"`
	FC      FCConfig      `yaml:"fc"`
	ALFF    ALFFConfig    `yaml:"alff"`
	ReHo    ReHoConfig    `yaml:"reho"`
	Run     RunConfig     `yaml:"run"`
}

// DataConfig locates the input scans.
type DataConfig struct {
	// Root is the study directory holding one subdirectory per subject.
	Root string `yaml:"root"`
	// SubjectGlob matches subject directories under Root.
	SubjectGlob string `yaml:"subject_glob"`
	// FuncPattern matches the resting-state scan within a subject
	// directory.
	FuncPattern string `yaml:"func_pattern"`
	// TR is the repetition time in seconds; 0 reads it from the header.
	TR float64 `yaml:"tr"`
	// VoxelScale is the header upscaling factor applied before
	// registration so rodent brains match tool expectations.
	VoxelScale float64 `yaml:"voxel_scale"`
}

// SpaceConfig names the template-space reference volumes.
type SpaceConfig struct {
	Template  string `yaml:"template"`
	BrainMask string `yaml:"brain_mask"`
	WMMask    string `yaml:"wm_mask"`
	CSFMask   string `yaml:"csf_mask"`
	Atlas     string `yaml:"atlas"`
	// MaskThreshold binarizes warped probabilistic masks.
	MaskThreshold float64 `yaml:"mask_threshold"`
}

// PreprocConfig toggles the external preprocessing stages.
type PreprocConfig struct {
	SliceTiming bool `yaml:"slice_timing"`
	// Interleaved selects odd-even slice acquisition.
	Interleaved bool `yaml:"interleaved"`
	// Reversed selects foot-to-head slice order.
	Reversed bool `yaml:"reversed"`
	Realign  bool `yaml:"realign"`
	Register bool `yaml:"register"`
	// Transform is the registration model, in antsRegistrationSyNQuick
	// notation.
	Transform string `yaml:"transform"`
	Smooth    bool   `yaml:"smooth"`
	// SmoothSigma is the Gaussian kernel sigma in mm, in upscaled space.
	SmoothSigma float64 `yaml:"smooth_sigma"`
}

// DenoiseConfig selects the nuisance regressors.
type DenoiseConfig struct {
	Detrend bool `yaml:"detrend"`
	// MotionModel is none, raw6, lag12, sq12 or friston24.
	MotionModel string `yaml:"motion_model"`
	// MotionOrder is the parameter file column order: fsl (rotations
	// first, what the mcflirt stage writes) or spm (translations first,
	// for externally supplied files).
	MotionOrder string `yaml:"motion_order"`
	WM          bool   `yaml:"wm"`
	CSF         bool   `yaml:"csf"`
	// AddMeanBack restores each voxel's temporal mean after regression.
	AddMeanBack bool `yaml:"add_mean_back"`
}

// FilterConfig sets the band-pass window in Hz. Low 0 disables the
// high-pass side, High 0 disables the low-pass side.
type FilterConfig struct {
	Enabled bool    `yaml:"enabled"`
	Low     float64 `yaml:"low_hz"`
	High    float64 `yaml:"high_hz"`
}

// ScrubConfig controls motion censoring.
type ScrubConfig struct {
	Enabled     bool    `yaml:"enabled"`
	FDThreshold float64 `yaml:"fd_threshold"`
	// HeadRadius converts rotations to displacement, in mm.
	HeadRadius float64 `yaml:"head_radius"`
	// Method is cut, nearest, linear, spline or pchip.
	Method string `yaml:"method"`
}

// ExtractConfig selects the per-region summary series.
type ExtractConfig struct {
	// Summary is mean, sum or pca.
	Summary string `yaml:"summary"`
}

// SeedConfig defines one seed region: a mask or series file, or an
// "x,y,z,radius" sphere in template mm.
type SeedConfig struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file,omitempty"`
	Sphere string `yaml:"sphere,omitempty"`
}

// FCConfig selects the functional connectivity outputs.
type FCConfig struct {
	// Matrix computes the atlas ROI-by-ROI correlation matrix.
	Matrix bool `yaml:"matrix"`
	// Voxelwise writes seed-to-voxel r and z maps for each seed.
	Voxelwise bool         `yaml:"voxelwise"`
	Seeds     []SeedConfig `yaml:"seeds,omitempty"`
}

// ALFFConfig sets the low-frequency band for the amplitude metrics.
type ALFFConfig struct {
	Enabled bool    `yaml:"enabled"`
	Low     float64 `yaml:"low_hz"`
	High    float64 `yaml:"high_hz"`
}

// ReHoConfig controls the regional homogeneity map.
type ReHoConfig struct {
	Enabled bool `yaml:"enabled"`
	// Neighborhood is the cluster size, 7, 19 or 27.
	Neighborhood int `yaml:"neighborhood"`
}

// RunConfig tunes execution.
type RunConfig struct {
	// Jobs is the number of subjects processed concurrently; 0 means one,
	// leaving all CPUs to within-subject math.
	Jobs int `yaml:"jobs"`
	// CutNumber bounds peak memory by chunking voxel columns.
	CutNumber int `yaml:"cut_number"`
	// ResultsDir collects group-level outputs, relative to Data.Root.
	ResultsDir string `yaml:"results_dir"`
}

// Default returns the configuration a fresh study starts from.
func Default() Config {
	return Config{
		Data: DataConfig{
			SubjectGlob: "sub*",
			FuncPattern: "rest/*.nii*",
			TR:          0,
			VoxelScale:  10,
		},
		Space: SpaceConfig{
			MaskThreshold: 0.5,
		},
		Preproc: PreprocConfig{
			SliceTiming: true,
			Interleaved: true,
			Realign:     true,
			Register:    true,
			Transform:   "s",
			Smooth:      true,
			SmoothSigma: 3.4,
		},
		Denoise: DenoiseConfig{
			Detrend:     true,
			MotionModel: string(denoise.MotionFriston24),
			MotionOrder: pio.MotionOrderFSL,
			WM:          true,
			CSF:         true,
			AddMeanBack: true,
		},
		Filter: FilterConfig{
			Enabled: true,
			Low:     0.01,
			High:    0.08,
		},
		Scrub: ScrubConfig{
			Enabled:     false,
			FDThreshold: 0.2,
			HeadRadius:  scrub.DefaultHeadRadius,
			Method:      "cut",
		},
		Extract: ExtractConfig{
			Summary: "mean",
		},
		FC: FCConfig{
			Matrix:    true,
			Voxelwise: false,
		},
		ALFF: ALFFConfig{
			Enabled: true,
			Low:     0.01,
			High:    0.08,
		},
		ReHo: ReHoConfig{
			Enabled:      true,
			Neighborhood: 27,
		},
		Run: RunConfig{
			Jobs:       0,
			CutNumber:  10,
			ResultsDir: "results",
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ErrNoDataRoot is returned when a command that walks subjects has no
// data.root configured.
var ErrNoDataRoot = errors.New("config: data.root is not set")

// Validate checks field ranges and cross-field consistency.
func (c Config) Validate() error {
	if c.Data.TR < 0 {
		return fmt.Errorf("config: data.tr must not be negative, got %g", c.Data.TR)
	}
	if c.Data.VoxelScale <= 0 {
		return fmt.Errorf("config: data.voxel_scale must be positive, got %g", c.Data.VoxelScale)
	}
	if c.Space.MaskThreshold <= 0 || c.Space.MaskThreshold > 1 {
		return fmt.Errorf("config: space.mask_threshold must be in (0, 1], got %g", c.Space.MaskThreshold)
	}
	if c.Preproc.Register && c.Preproc.Transform == "" {
		return errors.New("config: preproc.transform must be set when registration is enabled")
	}
	if c.Preproc.Smooth && c.Preproc.SmoothSigma <= 0 {
		return fmt.Errorf("config: preproc.smooth_sigma must be positive, got %g", c.Preproc.SmoothSigma)
	}

	if _, err := denoise.ParseMotionModel(c.Denoise.MotionModel); err != nil {
		return err
	}
	switch c.Denoise.MotionOrder {
	case "", pio.MotionOrderSPM, pio.MotionOrderFSL:
	default:
		return fmt.Errorf("%w: %q", pio.ErrMotionOrder, c.Denoise.MotionOrder)
	}

	if c.Filter.Enabled {
		if c.Filter.Low < 0 || c.Filter.High < 0 {
			return fmt.Errorf("config: filter band must not be negative, got [%g, %g]", c.Filter.Low, c.Filter.High)
		}
		if c.Filter.High > 0 && c.Filter.High <= c.Filter.Low {
			return fmt.Errorf("config: filter.high_hz %g must exceed filter.low_hz %g", c.Filter.High, c.Filter.Low)
		}
	}

	if c.Scrub.Enabled {
		if !c.Preproc.Realign {
			return errors.New("config: scrubbing needs preproc.realign for motion parameters")
		}
		if c.Scrub.FDThreshold <= 0 {
			return fmt.Errorf("config: scrub.fd_threshold must be positive, got %g", c.Scrub.FDThreshold)
		}
		if c.Scrub.HeadRadius <= 0 {
			return fmt.Errorf("config: scrub.head_radius must be positive, got %g", c.Scrub.HeadRadius)
		}
		if _, err := scrub.ParseMethod(c.Scrub.Method); err != nil {
			return err
		}
	}

	if _, err := extract.ParseSummary(c.Extract.Summary); err != nil {
		return err
	}

	if _, err := c.FC.Definitions(); err != nil {
		return err
	}

	if c.ALFF.Enabled {
		if c.ALFF.Low < 0 || c.ALFF.High <= c.ALFF.Low {
			return fmt.Errorf("config: alff band [%g, %g] Hz is not usable", c.ALFF.Low, c.ALFF.High)
		}
	}
	if c.ReHo.Enabled {
		switch c.ReHo.Neighborhood {
		case 7, 19, 27:
		default:
			return fmt.Errorf("config: reho.neighborhood must be 7, 19 or 27, got %d", c.ReHo.Neighborhood)
		}
	}

	if c.Run.Jobs < 0 {
		return fmt.Errorf("config: run.jobs must not be negative, got %d", c.Run.Jobs)
	}
	if c.Run.CutNumber < 0 {
		return fmt.Errorf("config: run.cut_number must not be negative, got %d", c.Run.CutNumber)
	}
	return nil
}

// Definitions resolves the seed list into region definitions. Each seed
// must set exactly one of file and sphere.
func (c FCConfig) Definitions() ([]roi.Definition, error) {
	defs := make([]roi.Definition, 0, len(c.Seeds))
	for i, s := range c.Seeds {
		switch {
		case s.File != "" && s.Sphere != "":
			return nil, fmt.Errorf("config: seed %d (%s) sets both file and sphere", i, s.Name)
		case s.File != "":
			def, err := roi.FromFile(s.Name, s.File)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		case s.Sphere != "":
			def, err := roi.ParseSphere(s.Name, s.Sphere)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		default:
			return nil, fmt.Errorf("config: seed %d (%s) sets neither file nor sphere", i, s.Name)
		}
	}
	return defs, nil
}
