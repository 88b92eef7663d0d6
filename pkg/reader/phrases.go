package reader

import (
	"fmt"
	"strings"
	"time"
)

// Phrases is the spoken text for one language.
type Phrases struct {
	welcome      string
	dateFormat   func(time.Time) string
	Headline     string
	Instructions string
	FetchFailed  string
	Selected     string
	Loading      string
	NoAudio      string
	PlayFailed   string
	Finished     string
	Paused       string
	Continuing   string
	NoMatch      string
	Recording    string
	NoSpeech     string
	SpeechError  string
	Quota        string
	LastArticle  string
	FirstArticle string
	NoSelection  string
}

var vietnamese = Phrases{
	welcome: "Tôi là trợ lý đọc tin tức, hôm nay %s có các tin tức nóng sau:",
	dateFormat: func(t time.Time) string {
		return fmt.Sprintf("ngày %d tháng %d năm %d", t.Day(), int(t.Month()), t.Year())
	},
	Headline:     "Tin số %d: %s",
	Instructions: "Bạn có thể nói tin số mấy để nghe, hoặc nói dừng, tiếp tục để điều khiển.",
	FetchFailed:  "Không thể tải tin tức. Vui lòng thử lại.",
	Selected:     "Đã chọn tin số %d: %s",
	Loading:      "Đang tải audio tin số %d",
	NoAudio:      "Tin này không có file âm thanh, sẽ đọc nội dung bằng giọng nói",
	PlayFailed:   "Không thể phát audio tin này. Sẽ đọc bằng giọng nói.",
	Finished:     "Đã phát xong tin này. Bạn có thể chọn tin khác.",
	Paused:       "Đã tạm dừng",
	Continuing:   "Tiếp tục phát",
	NoMatch:      "Không tìm thấy bài báo phù hợp. Thử nói tin số mấy.",
	Recording:    "Đang ghi âm... Nói tin số mấy hoặc lệnh điều khiển",
	NoSpeech:     "Không nhận diện được giọng nói. Vui lòng thử lại.",
	SpeechError:  "Lỗi xử lý giọng nói. Vui lòng thử lại.",
	Quota:        "Dịch vụ giọng nói đang quá tải. Vui lòng thử lại sau.",
	LastArticle:  "Đây là tin cuối cùng.",
	FirstArticle: "Đây là tin đầu tiên.",
	NoSelection:  "Bạn chưa chọn tin nào.",
}

var english = Phrases{
	welcome: "I am your news reading assistant, today %s we have the following hot news:",
	dateFormat: func(t time.Time) string {
		return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
	},
	Headline:     "News %d: %s",
	Instructions: "You can say news number to listen, or say stop, continue to control.",
	FetchFailed:  "Failed to load news. Please try again.",
	Selected:     "Selected news %d: %s",
	Loading:      "Loading audio for news %d",
	NoAudio:      "This news has no audio file, will read content with text-to-speech",
	PlayFailed:   "Cannot play audio for this news. Will read with text-to-speech.",
	Finished:     "Finished playing this news. You can select another news.",
	Paused:       "Paused",
	Continuing:   "Continuing playback",
	NoMatch:      "No matching article found. Try saying news number.",
	Recording:    "Recording... Say news number or control command",
	NoSpeech:     "No speech detected. Please try again.",
	SpeechError:  "Speech processing error. Please try again.",
	Quota:        "The speech service is busy. Please try again later.",
	LastArticle:  "This is the last news.",
	FirstArticle: "This is the first news.",
	NoSelection:  "No news is selected.",
}

// PhrasesFor picks Vietnamese for vi-* language codes and English otherwise.
func PhrasesFor(language string) Phrases {
	if strings.HasPrefix(strings.ToLower(language), "vi") {
		return vietnamese
	}
	return english
}

func (p Phrases) Welcome(now time.Time) string {
	return fmt.Sprintf(p.welcome, p.dateFormat(now))
}
