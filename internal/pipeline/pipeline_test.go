package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BrianAllred/TelegramVideoBot/internal/compress"
	"github.com/BrianAllred/TelegramVideoBot/internal/media"
	"github.com/BrianAllred/TelegramVideoBot/internal/queue"
)

const testLimitBytes = 1000 * 1000 // 1 MB ceiling keeps test files tiny

type fakeFetcher struct {
	dir       string
	createExt string // extension of the file to materialize; "" = none
	createLen int64
	err       error
}

func (f *fakeFetcher) Fetch(_ context.Context, userID int64, _ string) error {
	if f.createExt != "" {
		path := filepath.Join(f.dir, fmt.Sprintf("%d%s", userID, f.createExt))
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			return err
		}
		if f.createLen > 0 {
			if err := os.Truncate(path, f.createLen); err != nil {
				return err
			}
		}
	}
	return f.err
}

type fakeProber struct {
	info media.Info
	err  error
}

func (p *fakeProber) Probe(context.Context, string) (media.Info, error) {
	return p.info, p.err
}

type fakeTranscoder struct {
	err    error
	calls  int
	params compress.Params
}

func (t *fakeTranscoder) Transcode(_ context.Context, _, dst string, p compress.Params) error {
	t.calls++
	t.params = p
	if t.err != nil {
		return t.err
	}
	return os.WriteFile(dst, []byte("transcoded"), 0o644)
}

type sentVideo struct {
	chatID        int64
	name          string
	replyID       int
	width, height int
	body          string
}

type fakeDelivery struct {
	texts  []string
	videos []sentVideo
}

func (d *fakeDelivery) SendText(_ context.Context, _ int64, text string, _ int) error {
	d.texts = append(d.texts, text)
	return nil
}

func (d *fakeDelivery) SendVideo(_ context.Context, chatID int64, video io.Reader, name string, replyID, width, height int) error {
	body, err := io.ReadAll(video)
	if err != nil {
		return err
	}
	d.videos = append(d.videos, sentVideo{chatID, name, replyID, width, height, string(body)})
	return nil
}

func workingFiles(t *testing.T, dir string, userID int64) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%d.*", userID)))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func testReq() queue.Request {
	return queue.Request{ID: queue.NewID(), ChatID: 11, ReplyID: 22, URL: "https://example.com/video"}
}

func TestRunDeliversSmallCanonicalFileWithoutTranscoding(t *testing.T) {
	dir := t.TempDir()
	fetch := &fakeFetcher{dir: dir, createExt: ".mp4", createLen: 100}
	trans := &fakeTranscoder{}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{info: media.Info{DurationSeconds: 10, Width: 640, Height: 360}}, trans, del)

	e.Run(context.Background(), 1234, testReq())

	if trans.calls != 0 {
		t.Errorf("transcoder invoked %d times, want 0", trans.calls)
	}
	if len(del.texts) != 0 {
		t.Errorf("unexpected text replies: %v", del.texts)
	}
	if len(del.videos) != 1 {
		t.Fatalf("videos sent = %d, want 1", len(del.videos))
	}
	v := del.videos[0]
	if v.chatID != 11 || v.replyID != 22 {
		t.Errorf("reply metadata = chat %d reply %d, want 11/22", v.chatID, v.replyID)
	}
	if v.name != "1234.mp4" {
		t.Errorf("video name = %s, want 1234.mp4", v.name)
	}
	if v.width != 640 || v.height != 360 {
		t.Errorf("dimensions = %dx%d, want 640x360", v.width, v.height)
	}
	if left := workingFiles(t, dir, 1234); len(left) != 0 {
		t.Errorf("working files left behind: %v", left)
	}
}

func TestRunUnsupportedSource(t *testing.T) {
	dir := t.TempDir()
	fetch := &fakeFetcher{dir: dir, err: media.ErrUnsupportedSource}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{}, &fakeTranscoder{}, del)

	e.Run(context.Background(), 1234, testReq())

	if len(del.videos) != 0 {
		t.Errorf("must not deliver anything for an unsupported source")
	}
	if len(del.texts) != 1 || !strings.Contains(del.texts[0], "supportedsites.md") {
		t.Errorf("want one guidance reply with the supported-sites link, got %v", del.texts)
	}
	if left := workingFiles(t, dir, 1234); len(left) != 0 {
		t.Errorf("working files left behind: %v", left)
	}
}

func TestRunCompressesOversizeFile(t *testing.T) {
	dir := t.TempDir()
	fetch := &fakeFetcher{dir: dir, createExt: ".mp4", createLen: 2 * testLimitBytes}
	trans := &fakeTranscoder{}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{info: media.Info{DurationSeconds: 10, Width: 1280, Height: 720}}, trans, del)

	e.Run(context.Background(), 1234, testReq())

	if trans.calls != 1 {
		t.Fatalf("transcoder invoked %d times, want 1", trans.calls)
	}
	wantPlan, err := compress.Plan(compress.TargetBytes(testLimitBytes), 10)
	if err != nil {
		t.Fatal(err)
	}
	if trans.params != wantPlan {
		t.Errorf("transcode params = %+v, want %+v", trans.params, wantPlan)
	}
	if len(del.texts) != 1 || !strings.Contains(del.texts[0], "compression") {
		t.Errorf("want a compression notice before transcoding, got %v", del.texts)
	}
	if len(del.videos) != 1 {
		t.Fatalf("videos sent = %d, want 1", len(del.videos))
	}
	if del.videos[0].body != "transcoded" {
		t.Errorf("delivered body = %q, want the transcoded file", del.videos[0].body)
	}
	if left := workingFiles(t, dir, 1234); len(left) != 0 {
		t.Errorf("working files left behind: %v", left)
	}
}

func TestRunNormalizesNonCanonicalContainer(t *testing.T) {
	dir := t.TempDir()
	fetch := &fakeFetcher{dir: dir, createExt: ".webm", createLen: 100}
	trans := &fakeTranscoder{}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{info: media.Info{DurationSeconds: 10}}, trans, del)

	e.Run(context.Background(), 1234, testReq())

	if trans.calls != 1 {
		t.Fatalf("transcoder invoked %d times, want 1", trans.calls)
	}
	if len(del.texts) != 1 || !strings.Contains(del.texts[0], "converting") {
		t.Errorf("want a converting notice, got %v", del.texts)
	}
	if len(del.videos) != 1 {
		t.Fatalf("videos sent = %d, want 1", len(del.videos))
	}
	if del.videos[0].name != "1234.mp4" {
		t.Errorf("delivered name = %s, want canonical 1234.mp4", del.videos[0].name)
	}
	if left := workingFiles(t, dir, 1234); len(left) != 0 {
		t.Errorf("working files left behind: %v", left)
	}
}

func TestRunCompressionFailure(t *testing.T) {
	dir := t.TempDir()
	fetch := &fakeFetcher{dir: dir, createExt: ".mp4", createLen: 2 * testLimitBytes}
	trans := &fakeTranscoder{err: errors.New("encoder blew up")}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{info: media.Info{DurationSeconds: 10}}, trans, del)

	e.Run(context.Background(), 1234, testReq())

	if len(del.videos) != 0 {
		t.Errorf("must not deliver after a failed transcode")
	}
	// notice first, then the failure reply
	if len(del.texts) != 2 || !strings.Contains(del.texts[1], "compressing") {
		t.Errorf("want notice + compression-failure reply, got %v", del.texts)
	}
	if left := workingFiles(t, dir, 1234); len(left) != 0 {
		t.Errorf("working files left behind: %v", left)
	}
}

func TestRunZeroDurationIsCompressionFailure(t *testing.T) {
	dir := t.TempDir()
	fetch := &fakeFetcher{dir: dir, createExt: ".mp4", createLen: 2 * testLimitBytes}
	trans := &fakeTranscoder{}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{info: media.Info{DurationSeconds: 0}}, trans, del)

	e.Run(context.Background(), 1234, testReq())

	if trans.calls != 0 {
		t.Errorf("policy must not run on zero-duration media, transcoder called %d times", trans.calls)
	}
	if len(del.videos) != 0 {
		t.Errorf("must not deliver")
	}
	if len(del.texts) != 2 || !strings.Contains(del.texts[1], "compressing") {
		t.Errorf("want compression-failure reply, got %v", del.texts)
	}
}

func TestRunDownloadFailure(t *testing.T) {
	dir := t.TempDir()
	fetch := &fakeFetcher{dir: dir, err: errors.New("network sadness")}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{}, &fakeTranscoder{}, del)

	e.Run(context.Background(), 1234, testReq())

	if len(del.videos) != 0 {
		t.Errorf("must not deliver after a failed fetch")
	}
	if len(del.texts) != 1 || !strings.Contains(del.texts[0], "something went wrong") {
		t.Errorf("want the apology reply, got %v", del.texts)
	}
}

func TestRunMissingWorkingFileIsDownloadFailure(t *testing.T) {
	dir := t.TempDir()
	// fetch "succeeds" but produces no file
	fetch := &fakeFetcher{dir: dir}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{}, &fakeTranscoder{}, del)

	e.Run(context.Background(), 1234, testReq())

	if len(del.texts) != 1 || !strings.Contains(del.texts[0], "something went wrong") {
		t.Errorf("want the apology reply, got %v", del.texts)
	}
}

func TestCodeSpan(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/video", "`https://example.com/video`"},
		{"https://example.com/a`b", "`https://example.com/a\\`b`"},
		{`https://example.com/a\b`, "`https://example.com/a\\\\b`"},
	}
	for _, tt := range tests {
		if got := CodeSpan(tt.in); got != tt.want {
			t.Errorf("CodeSpan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRepliesEscapeDynamicText(t *testing.T) {
	url := "https://example.com/a`b\\c"
	const escaped = "`https://example.com/a\\`b\\\\c`"
	replies := map[string]string{
		"download failed":    downloadFailedReply(url),
		"compression failed": compressionFailedReply(url),
		"compressing notice": compressingNotice(url, 50*1000*1000),
		"converting notice":  convertingNotice(url),
	}
	for name, text := range replies {
		if !strings.Contains(text, escaped) {
			t.Errorf("%s reply does not escape the code span: %q", name, text)
		}
	}
}

func TestRunPreCleansStaleWorkingFile(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "1234.mkv")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	fetch := &fakeFetcher{dir: dir, createExt: ".mp4", createLen: 100}
	del := &fakeDelivery{}
	e := New(dir, testLimitBytes, fetch, &fakeProber{info: media.Info{DurationSeconds: 10}}, &fakeTranscoder{}, del)

	e.Run(context.Background(), 1234, testReq())

	if len(del.videos) != 1 {
		t.Fatalf("videos sent = %d, want 1", len(del.videos))
	}
	if del.videos[0].name != "1234.mp4" {
		t.Errorf("delivered %s; stale file should have been pre-cleaned", del.videos[0].name)
	}
	if left := workingFiles(t, dir, 1234); len(left) != 0 {
		t.Errorf("working files left behind: %v", left)
	}
}
