package models

// DefaultNegativePrompt is sent with every request unless overridden by configuration.
const DefaultNegativePrompt = "ugly, tiling, poorly drawn hands, poorly drawn feet, poorly drawn face, out of frame, " +
	"extra limbs, disfigured, deformed, body out of frame, bad anatomy, watermark, signature, cut off, " +
	"low contrast, underexposed, overexposed, bad art, beginner, amateur, distorted face"

// GenerationRequest is the txt2img request body.
type GenerationRequest struct {
	Prompt                            string         `json:"prompt"`
	NegativePrompt                    string         `json:"negative_prompt"`
	Styles                            []string       `json:"styles"`
	Seed                              int64          `json:"seed"`
	Subseed                           int64          `json:"subseed"`
	SubseedStrength                   float64        `json:"subseed_strength"`
	SeedResizeFromH                   int            `json:"seed_resize_from_h"`
	SeedResizeFromW                   int            `json:"seed_resize_from_w"`
	SamplerName                       string         `json:"sampler_name"`
	Scheduler                         string         `json:"scheduler"`
	BatchSize                         int            `json:"batch_size"`
	NIter                             int            `json:"n_iter"`
	Steps                             int            `json:"steps"`
	CfgScale                          float64        `json:"cfg_scale"`
	Width                             int            `json:"width"`
	Height                            int            `json:"height"`
	RestoreFaces                      bool           `json:"restore_faces"`
	Tiling                            bool           `json:"tiling"`
	DoNotSaveSamples                  bool           `json:"do_not_save_samples"`
	DoNotSaveGrid                     bool           `json:"do_not_save_grid"`
	Eta                               float64        `json:"eta"`
	DenoisingStrength                 float64        `json:"denoising_strength"`
	SMinUncond                        float64        `json:"s_min_uncond"`
	SChurn                            float64        `json:"s_churn"`
	STmax                             float64        `json:"s_tmax"`
	STmin                             float64        `json:"s_tmin"`
	SNoise                            float64        `json:"s_noise"`
	OverrideSettings                  map[string]any `json:"override_settings"`
	OverrideSettingsRestoreAfterwards bool           `json:"override_settings_restore_afterwards"`
	RefinerSwitchAt                   float64        `json:"refiner_switch_at"`
	DisableExtraNetworks              bool           `json:"disable_extra_networks"`
	Comments                          map[string]any `json:"comments"`
	EnableHR                          bool           `json:"enable_hr"`
	FirstphaseWidth                   int            `json:"firstphase_width"`
	FirstphaseHeight                  int            `json:"firstphase_height"`
	HRScale                           float64        `json:"hr_scale"`
	HRUpscaler                        string         `json:"hr_upscaler"`
	HRSecondPassSteps                 int            `json:"hr_second_pass_steps"`
	SamplerIndex                      string         `json:"sampler_index"`
	ScriptArgs                        []any          `json:"script_args"`
	SendImages                        bool           `json:"send_images"`
	SaveImages                        bool           `json:"save_images"`
	AlwaysonScripts                   map[string]any `json:"alwayson_scripts"`
}

// NewGenerationRequest overlays a prompt and checkpoint on the fixed sampling template.
func NewGenerationRequest(prompt, modelPath, negativePrompt string) GenerationRequest {
	if negativePrompt == "" {
		negativePrompt = DefaultNegativePrompt
	}
	return GenerationRequest{
		Prompt:                            prompt,
		NegativePrompt:                    negativePrompt,
		Styles:                            []string{""},
		Seed:                              -1,
		Subseed:                           -1,
		SeedResizeFromH:                   -1,
		SeedResizeFromW:                   -1,
		SamplerName:                       "DPM++ 2M",
		Scheduler:                         "Karras",
		BatchSize:                         1,
		NIter:                             1,
		Steps:                             20,
		CfgScale:                          7,
		Width:                             512,
		Height:                            512,
		RestoreFaces:                      true,
		DenoisingStrength:                 0.7,
		OverrideSettings:                  map[string]any{"sd_model_checkpoint": modelPath},
		OverrideSettingsRestoreAfterwards: true,
		RefinerSwitchAt:                   0.8,
		Comments:                          map[string]any{},
		EnableHR:                          true,
		HRScale:                           2,
		HRUpscaler:                        "Latent",
		SamplerIndex:                      "Euler",
		ScriptArgs:                        []any{},
		SendImages:                        true,
		SaveImages:                        true,
		AlwaysonScripts:                   map[string]any{},
	}
}

// ModelCheckpoint returns the checkpoint override carried by the request.
func (r GenerationRequest) ModelCheckpoint() string {
	if v, ok := r.OverrideSettings["sd_model_checkpoint"].(string); ok {
		return v
	}
	return ""
}

// ProgressSample is a point-in-time status reading for an in-flight generation.
type ProgressSample struct {
	Fraction   float64 `json:"progress"`
	ETASeconds float64 `json:"eta_relative"`
}

// Clamp forces the sample into its valid range.
func (p ProgressSample) Clamp() ProgressSample {
	if p.Fraction < 0 {
		p.Fraction = 0
	}
	if p.Fraction > 1 {
		p.Fraction = 1
	}
	if p.ETASeconds < 0 {
		p.ETASeconds = 0
	}
	return p
}

// GenerationResult is a decoded image plus the metadata it was generated from.
type GenerationResult struct {
	Image     []byte
	Prompt    string
	ModelType ModelType
	ModelName string
}
