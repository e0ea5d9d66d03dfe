// Command localtest runs the download pipeline against a URL without
// touching Telegram: replies go to stdout and the video is copied into the
// current directory. Handy for poking at yt-dlp/ffmpeg behavior.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/BrianAllred/TelegramVideoBot/internal/config"
	"github.com/BrianAllred/TelegramVideoBot/internal/logx"
	"github.com/BrianAllred/TelegramVideoBot/internal/media"
	"github.com/BrianAllred/TelegramVideoBot/internal/pipeline"
	"github.com/BrianAllred/TelegramVideoBot/internal/queue"
)

type stdoutDelivery struct{}

func (stdoutDelivery) SendText(_ context.Context, _ int64, text string, _ int) error {
	fmt.Println("reply:", text)
	return nil
}

func (stdoutDelivery) SendVideo(_ context.Context, _ int64, video io.Reader, name string, _, width, height int) error {
	out, err := os.Create("out-" + name)
	if err != nil {
		return err
	}
	defer out.Close()
	n, err := io.Copy(out, video)
	if err != nil {
		return err
	}
	fmt.Printf("delivered: %s (%d bytes, %dx%d)\n", out.Name(), n, width, height)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/localtest <video-url>")
		return
	}

	cfg := config.FromEnv()
	logx.Setup(logx.Config{Service: "localtest", Level: "debug", Format: "console"})

	exec := pipeline.New(
		cfg.DataDir,
		cfg.UploadLimitBytes(),
		media.NewDownloader(cfg.DataDir, cfg.UploadLimitMB, cfg.ToolTimeout),
		media.NewProber(cfg.ToolTimeout),
		media.NewTranscoder(cfg.ToolTimeout),
		stdoutDelivery{},
	)

	exec.Run(context.Background(), 0, queue.Request{
		ID:  queue.NewID(),
		URL: os.Args[1],
	})
}
