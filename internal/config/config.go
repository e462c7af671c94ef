package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Study  StudyConfig
}

// Load 从环境变量加载配置。缺失模型凭证视为启动错误，会话开始前必须失败。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	study, err := loadStudyConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Study: study}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置，主备两个模型共用同一份凭证。
type AIConfig struct {
	APIKey        string
	AccessKey     string
	SecretKey     string
	PrimaryModel  string
	FallbackModel string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
}

// credentialed 表示是否提供了必需的密钥。
func (c AIConfig) credentialed() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用配置创建一个指定模型名的实例。
func (c AIConfig) NewChatModel(ctx context.Context, modelName string) (model.BaseChatModel, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       modelName,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		PrimaryModel:  strings.TrimSpace(os.Getenv("AI_PRIMARY_MODEL")),
		FallbackModel: strings.TrimSpace(os.Getenv("AI_FALLBACK_MODEL")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
	}

	if !cfg.credentialed() {
		return AIConfig{}, fmt.Errorf("model credentials missing: provide ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY")
	}
	if cfg.PrimaryModel == "" {
		return AIConfig{}, fmt.Errorf("AI_PRIMARY_MODEL is required")
	}
	if cfg.FallbackModel == "" {
		return AIConfig{}, fmt.Errorf("AI_FALLBACK_MODEL is required")
	}

	return cfg, nil
}

// StudyConfig 描述实验编排相关的可调参数。
type StudyConfig struct {
	SecondReplyProbability float64
	ReplyDelayMin          time.Duration
	ReplyDelayMax          time.Duration
	FirstReplyDelayMin     time.Duration
	FirstReplyDelayMax     time.Duration
	ReadDelayMin           time.Duration
	ReadDelayMax           time.Duration
	LogDir                 string
	LockTimeout            time.Duration
}

func loadStudyConfig() (StudyConfig, error) {
	probability := 0.7
	if override, err := parseOptionalFloatEnv("STUDY_SECOND_REPLY_PROBABILITY"); err != nil {
		return StudyConfig{}, err
	} else if override != nil {
		if *override < 0 || *override > 1 {
			return StudyConfig{}, fmt.Errorf("STUDY_SECOND_REPLY_PROBABILITY must be within [0,1], got %v", *override)
		}
		probability = *override
	}

	replyMin, err := parseDurationSecondsEnv("STUDY_REPLY_DELAY_MIN", 2*time.Second)
	if err != nil {
		return StudyConfig{}, err
	}
	replyMax, err := parseDurationSecondsEnv("STUDY_REPLY_DELAY_MAX", 4*time.Second)
	if err != nil {
		return StudyConfig{}, err
	}
	firstMin, err := parseDurationSecondsEnv("STUDY_FIRST_REPLY_DELAY_MIN", replyMin)
	if err != nil {
		return StudyConfig{}, err
	}
	firstMax, err := parseDurationSecondsEnv("STUDY_FIRST_REPLY_DELAY_MAX", replyMax)
	if err != nil {
		return StudyConfig{}, err
	}
	readMin, err := parseDurationSecondsEnv("STUDY_READ_DELAY_MIN", 600*time.Millisecond)
	if err != nil {
		return StudyConfig{}, err
	}
	readMax, err := parseDurationSecondsEnv("STUDY_READ_DELAY_MAX", 1200*time.Millisecond)
	if err != nil {
		return StudyConfig{}, err
	}
	lockTimeout, err := parseDurationSecondsEnv("RECORD_LOCK_TIMEOUT", 10*time.Second)
	if err != nil {
		return StudyConfig{}, err
	}

	if replyMax < replyMin {
		return StudyConfig{}, fmt.Errorf("STUDY_REPLY_DELAY_MAX must be >= STUDY_REPLY_DELAY_MIN")
	}
	if firstMax < firstMin {
		return StudyConfig{}, fmt.Errorf("STUDY_FIRST_REPLY_DELAY_MAX must be >= STUDY_FIRST_REPLY_DELAY_MIN")
	}
	// 首轮延迟不得短于后续轮次。
	if firstMin < replyMin {
		return StudyConfig{}, fmt.Errorf("STUDY_FIRST_REPLY_DELAY_MIN must be >= STUDY_REPLY_DELAY_MIN")
	}
	if readMax < readMin {
		return StudyConfig{}, fmt.Errorf("STUDY_READ_DELAY_MAX must be >= STUDY_READ_DELAY_MIN")
	}

	return StudyConfig{
		SecondReplyProbability: probability,
		ReplyDelayMin:          replyMin,
		ReplyDelayMax:          replyMax,
		FirstReplyDelayMin:     firstMin,
		FirstReplyDelayMax:     firstMax,
		ReadDelayMin:           readMin,
		ReadDelayMax:           readMax,
		LogDir:                 getEnvOrDefault("STUDY_LOG_DIR", "conversations"),
		LockTimeout:            lockTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationSecondsEnv 解析以秒为单位的浮点配置项。
func parseDurationSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
