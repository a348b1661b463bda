package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	DiscordToken string
	GuildID      string

	IntakeChannelID     string
	AnnounceChannelID   string
	ModLogChannelID     string
	ReleasesBotID       string
	TesterRoleID        string
	TestingCategories   []string
	WaitingCategories   []string
	EvaluatedCategories []string

	MapServerURL   string
	MapServerToken string
	ArchiveURL     string
	ArchiveToken   string

	ThumbnailBin  string
	ThumbnailSize string

	PreviewBaseURL string

	APIKey     string
	ServerPort string

	CategoryLimit   int
	WeeklyBatchSize int
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "maptest"),

		DiscordToken: getEnv("DISCORD_TOKEN", ""),
		GuildID:      getEnv("DISCORD_GUILD_ID", ""),

		IntakeChannelID:     getEnv("INTAKE_CHANNEL_ID", ""),
		AnnounceChannelID:   getEnv("ANNOUNCE_CHANNEL_ID", ""),
		ModLogChannelID:     getEnv("MODLOG_CHANNEL_ID", ""),
		ReleasesBotID:       getEnv("RELEASES_BOT_ID", ""),
		TesterRoleID:        getEnv("TESTER_ROLE_ID", ""),
		TestingCategories:   splitEnv("TESTING_CATEGORY_IDS"),
		WaitingCategories:   splitEnv("WAITING_CATEGORY_IDS"),
		EvaluatedCategories: splitEnv("EVALUATED_CATEGORY_IDS"),

		MapServerURL:   getEnv("MAPSERVER_URL", ""),
		MapServerToken: getEnv("MAPSERVER_TOKEN", ""),
		ArchiveURL:     getEnv("ARCHIVE_URL", ""),
		ArchiveToken:   getEnv("ARCHIVE_TOKEN", ""),

		ThumbnailBin:  getEnv("THUMBNAIL_BIN", ""),
		ThumbnailSize: getEnv("THUMBNAIL_SIZE", "720"),

		PreviewBaseURL: getEnv("PREVIEW_BASE_URL", "https://preview.maptest.example/"),

		APIKey:     getEnv("API_KEY", "api-key-change-me"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		CategoryLimit:   getEnvInt("CATEGORY_LIMIT", 50),
		WeeklyBatchSize: getEnvInt("WEEKLY_BATCH_SIZE", 3),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func splitEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
