package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the bot reads from the environment. A .env file is
// honored when present (godotenv in cmd/bot), real environment wins.
type Config struct {
	BotToken string
	BotName  string

	// Per-user admission control.
	QueueLimit int

	// Delivery ceiling imposed by the Telegram Bot API, in megabytes.
	UploadLimitMB int

	// Directory working files are written to.
	DataDir string

	// Hard cap on any single yt-dlp/ffmpeg/ffprobe invocation. A hung tool
	// otherwise stalls that user's queue forever.
	ToolTimeout time.Duration

	// Idle user queues are evicted after this long without activity.
	QueueEvictAfter time.Duration

	// Grace period for in-flight downloads on shutdown.
	ShutdownGrace time.Duration

	UpdateYtDlpOnStart bool
	HealthAddr         string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func mustBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return def
}

func mustDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		BotToken:           os.Getenv("TG_BOT_TOKEN"),
		BotName:            getenv("TG_BOT_NAME", "Frozen's Video Bot"),
		QueueLimit:         mustInt("DOWNLOAD_QUEUE_LIMIT", 5),
		UploadLimitMB:      mustInt("UPLOAD_LIMIT_MB", 50),
		DataDir:            getenv("DATA_DIR", "."),
		ToolTimeout:        mustDuration("TOOL_TIMEOUT", 30*time.Minute),
		QueueEvictAfter:    mustDuration("QUEUE_EVICT_AFTER", time.Hour),
		ShutdownGrace:      mustDuration("SHUTDOWN_GRACE", 5*time.Minute),
		UpdateYtDlpOnStart: mustBool("UPDATE_YTDLP_ON_START", false),
		HealthAddr:         getenv("HEALTH_ADDR", ":8080"),
	}
}

// UploadLimitBytes is the hard ceiling a delivered file must stay under.
func (c Config) UploadLimitBytes() int64 {
	return int64(c.UploadLimitMB) * 1000 * 1000
}
