package pipeline

import (
	"fmt"
	"strings"
)

// Terminal and progress reply templates, all MarkdownV2. Reserved characters
// in the fixed text are pre-escaped; URLs ride inside code spans.

var codeSpanEscaper = strings.NewReplacer("\\", "\\\\", "`", "\\`")

// CodeSpan wraps dynamic text in a MarkdownV2 code span. Backtick and
// backslash are reserved inside one; left unescaped they break the span and
// Telegram rejects the whole message.
func CodeSpan(s string) string {
	return "`" + codeSpanEscaper.Replace(s) + "`"
}

func unsupportedReply() string {
	return "Failed to find video, are you sure this website/format is supported?\n\n" +
		"Please check the list of supported sites [here](https://github.com/yt-dlp/yt-dlp/blob/master/supportedsites.md)\\."
}

func downloadFailedReply(url string) string {
	return fmt.Sprintf("Sorry, something went wrong downloading %s\\. "+
		"I can't \\(currently\\!\\) access private videos, so please make sure it's available to the public\\.\n\n"+
		"If that's not the problem, please try again later\\.", CodeSpan(url))
}

func compressionFailedReply(url string) string {
	return fmt.Sprintf("Sorry, compressing %s to fit under the upload limit failed\\. "+
		"Please try a shorter or smaller video\\.", CodeSpan(url))
}

func compressingNotice(url string, limitBytes int64) string {
	return fmt.Sprintf("Video %s is larger than %dMB and requires further compression, please wait\\.",
		CodeSpan(url), limitBytes/(1000*1000))
}

func convertingNotice(url string) string {
	return fmt.Sprintf("Video %s needs converting before sending, please wait\\.", CodeSpan(url))
}
