package youtube

import "regexp"

// YouTube video IDs are 11 characters of [a-zA-Z0-9_-].
const videoIDPattern = `[a-zA-Z0-9_-]{11}`

var videoIDRegexps = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/embed/(` + videoIDPattern + `)`),
	regexp.MustCompile(`youtube\.com/watch\?v=(` + videoIDPattern + `)`),
	regexp.MustCompile(`youtu\.be/(` + videoIDPattern + `)`),
	regexp.MustCompile(`youtube\.com/live/(` + videoIDPattern + `)`),
}

// ExtractVideoID pulls the video ID out of embed, watch, youtu.be and live
// URL forms. Returns "" when no ID can be found.
func ExtractVideoID(url string) string {
	if url == "" {
		return ""
	}
	for _, re := range videoIDRegexps {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// WatchURL builds the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// EmbedURL builds the playback/embed URL used as the canonical stream URL.
func EmbedURL(videoID string) string {
	return "https://www.youtube.com/embed/" + videoID + "?rel=0&modestbranding=1&playsinline=1"
}
