package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	DatabaseURL     string
	DBPoolProfile   string
	Env             string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string

	NarrativeProvider    string
	NarrativeModel       string
	NarrativeBaseURL     string
	NarrativeTemperature float64
	NarrativeStages      map[string]NarrativeStage

	ExtractConcurrency int
	PerFileTimeout     time.Duration
	StageTimeout       time.Duration

	Thresholds Thresholds
}

// NarrativeStage overrides the narrative model or temperature for one
// pipeline stage. Unset fields fall back to the global settings.
type NarrativeStage struct {
	Model          string
	Temperature    float64
	HasTemperature bool
}

// Thresholds are the scoring bands consumed by the analysis stages. Every
// field is overridable through the environment so deployments can tune the
// bands without a rebuild.
type Thresholds struct {
	StrongGrowth     float64
	DeclineGrowth    float64
	ExcellentMargin  float64
	LowMargin        float64
	HighExpenseRatio float64
	VolatilityLow    float64
	VolatilityHigh   float64
	DebtRatioLow     float64
	DebtRatioHigh    float64
	CurrentRatioLow  float64
	CurrentRatioHigh float64
	RiskScoreLow     float64
	RiskScoreMedium  float64
}

// DefaultThresholds returns the default scoring bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongGrowth:     10,
		DeclineGrowth:    -10,
		ExcellentMargin:  20,
		LowMargin:        5,
		HighExpenseRatio: 80,
		VolatilityLow:    5,
		VolatilityHigh:   25,
		DebtRatioLow:     30,
		DebtRatioHigh:    80,
		CurrentRatioLow:  1.0,
		CurrentRatioHigh: 2.0,
		RiskScoreLow:     40,
		RiskScoreMedium:  65,
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:     dbURL,
		DBPoolProfile:   getEnv("DB_POOL_PROFILE", ""),
		Env:             env,

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		UIRedirectURL:      getEnv("UI_REDIRECT_URL", ""),

		NarrativeProvider:    normalizeNarrativeProvider(getEnv("NARRATIVE_PROVIDER", "none")),
		NarrativeModel:       getEnv("NARRATIVE_MODEL", ""),
		NarrativeBaseURL:     getEnv("NARRATIVE_BASE_URL", ""),
		NarrativeTemperature: getEnvFloat("NARRATIVE_TEMPERATURE", 0.3),
		NarrativeStages:      loadNarrativeStages(),

		ExtractConcurrency: getEnvInt("EXTRACT_CONCURRENCY", 4),
		PerFileTimeout:     getEnvDuration("EXTRACT_FILE_TIMEOUT", 30*time.Second),
		StageTimeout:       getEnvDuration("PIPELINE_STAGE_TIMEOUT", 60*time.Second),

		Thresholds: loadThresholds(),
	}
}

// narrativeStageNames match the report JSON keys of the pipeline stages.
var narrativeStageNames = []string{"data_analysis", "risk_evaluation", "market_strategy", "consensus"}

func loadNarrativeStages() map[string]NarrativeStage {
	out := map[string]NarrativeStage{}
	for _, stage := range narrativeStageNames {
		prefix := "NARRATIVE_" + strings.ToUpper(stage) + "_"
		s := NarrativeStage{Model: getEnv(prefix+"MODEL", "")}
		if raw := strings.TrimSpace(os.Getenv(prefix + "TEMPERATURE")); raw != "" {
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				log.Printf("config %sTEMPERATURE invalid float: %v", prefix, err)
			} else {
				s.Temperature = val
				s.HasTemperature = true
			}
		}
		if s.Model == "" && !s.HasTemperature {
			continue
		}
		out[stage] = s
	}
	return out
}

func loadThresholds() Thresholds {
	th := DefaultThresholds()
	th.StrongGrowth = getEnvFloat("THRESHOLD_STRONG_GROWTH", th.StrongGrowth)
	th.DeclineGrowth = getEnvFloat("THRESHOLD_DECLINE_GROWTH", th.DeclineGrowth)
	th.ExcellentMargin = getEnvFloat("THRESHOLD_EXCELLENT_MARGIN", th.ExcellentMargin)
	th.LowMargin = getEnvFloat("THRESHOLD_LOW_MARGIN", th.LowMargin)
	th.HighExpenseRatio = getEnvFloat("THRESHOLD_HIGH_EXPENSE_RATIO", th.HighExpenseRatio)
	th.VolatilityLow = getEnvFloat("THRESHOLD_VOLATILITY_LOW", th.VolatilityLow)
	th.VolatilityHigh = getEnvFloat("THRESHOLD_VOLATILITY_HIGH", th.VolatilityHigh)
	th.DebtRatioLow = getEnvFloat("THRESHOLD_DEBT_RATIO_LOW", th.DebtRatioLow)
	th.DebtRatioHigh = getEnvFloat("THRESHOLD_DEBT_RATIO_HIGH", th.DebtRatioHigh)
	th.CurrentRatioLow = getEnvFloat("THRESHOLD_CURRENT_RATIO_LOW", th.CurrentRatioLow)
	th.CurrentRatioHigh = getEnvFloat("THRESHOLD_CURRENT_RATIO_HIGH", th.CurrentRatioHigh)
	th.RiskScoreLow = getEnvFloat("THRESHOLD_RISK_SCORE_LOW", th.RiskScoreLow)
	th.RiskScoreMedium = getEnvFloat("THRESHOLD_RISK_SCORE_MEDIUM", th.RiskScoreMedium)
	return th
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeNarrativeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	default:
		return "none"
	}
}
